package ndb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/easzlab/netfix/pkg/config"
	"github.com/easzlab/netfix/pkg/nlctl"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T, factory nlctl.Factory) *DB {
	t.Helper()
	db, err := Open(Config{Provider: config.ProviderSQLite, Spec: ":memory:"}, factory, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_DefaultSource(t *testing.T) {
	db := newTestDB(t, nlctl.NewFakeFactory())

	source, err := db.Source("localhost")
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if source.Netns() != "" {
		t.Errorf("expected local source, got netns %q", source.Netns())
	}

	if _, err := db.Source("elsewhere"); err == nil {
		t.Fatal("expected error for unknown source, got nil")
	}
}

func TestOpen_NetnsSource(t *testing.T) {
	factory := nlctl.NewFakeFactory()
	db, err := Open(Config{
		Provider: config.ProviderSQLite,
		Spec:     ":memory:",
		Sources:  []SourceSpec{{Target: "localhost", Kind: "netns", Netns: "ns-test"}},
	}, factory, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	source, err := db.Source("localhost")
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if source.Netns() != "ns-test" {
		t.Errorf("expected source bound to ns-test, got %q", source.Netns())
	}
}

func TestCreateInterface_Commit(t *testing.T) {
	factory := nlctl.NewFakeFactory()
	db := newTestDB(t, factory)

	iface, err := db.CreateInterface("dummy", "nfxtest0", "up")
	if err != nil {
		t.Fatalf("CreateInterface failed: %v", err)
	}
	if iface.Index == 0 {
		t.Error("expected assigned index, got 0")
	}
	if iface.Name != "nfxtest0" {
		t.Errorf("expected name nfxtest0, got %q", iface.Name)
	}

	// The interface exists on the control plane and in the database.
	if !factory.Fake("").HasLink("nfxtest0") {
		t.Error("expected link created through the control handle")
	}
	n, err := db.InterfaceCount()
	if err != nil {
		t.Fatalf("InterfaceCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 committed interface, got %d", n)
	}
}

func TestCreateInterface_UnsupportedKind(t *testing.T) {
	db := newTestDB(t, nlctl.NewFakeFactory())

	_, err := db.CreateInterface("", "nfxtest1", "up")
	if err == nil {
		t.Fatal("expected error for unsupported kind, got nil")
	}
	if !nlctl.IsUnsupported(err) {
		t.Fatalf("expected unsupported classification, got %v", err)
	}
}

func TestBackup_Snapshot(t *testing.T) {
	db := newTestDB(t, nlctl.NewFakeFactory())

	if _, err := db.CreateInterface("dummy", "nfxsnap0", "up"); err != nil {
		t.Fatalf("CreateInterface failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "post.db")
	if err := db.Backup(path); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected snapshot file, stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty snapshot file")
	}
}

func TestOpen_UnknownProvider(t *testing.T) {
	_, err := Open(Config{Provider: "oracle"}, nlctl.NewFakeFactory(), zap.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(Config{
		Provider: config.ProviderPostgres,
		Spec:     "netfix_ci",
		Params:   map[string]string{"host": "localhost", "port": "5432", "user": "ci"},
	})
	want := "dbname=netfix_ci host=localhost port=5432 user=ci"
	if dsn != want {
		t.Fatalf("expected dsn %q, got %q", want, dsn)
	}
}
