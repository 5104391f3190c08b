package fixture

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/easzlab/netfix/pkg/ident"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Spec holds the per-context session identity and artifact locations:
// the session uid, the debug log destination, and the path of the
// database snapshot kept for postmortem inspection.
type Spec struct {
	// UID is the opaque unique token naming this session.
	UID string

	// LogBase is the common prefix of all artifact paths.
	LogBase string

	// LogPath and LogLevel describe the context's log destination.
	LogPath  string
	LogLevel zapcore.Level

	// DBPath is where a file-backed database for this session would live.
	DBPath string
}

// NewSpec derives a session Spec under baseDir. An empty baseDir falls
// back to the system temp directory.
func NewSpec(baseDir string) Spec {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	uid := ident.NewUID()
	base := filepath.Join(baseDir, fmt.Sprintf("ndb-%d", os.Getpid()))
	return Spec{
		UID:      uid,
		LogBase:  base,
		LogPath:  fmt.Sprintf("%s-%s.log", base, uid),
		LogLevel: zapcore.DebugLevel,
		DBPath:   fmt.Sprintf("%s-%s.sql", base, uid),
	}
}

// NewLog returns a fresh log path under the session's base. With an empty
// uid a new unique one is generated, so repeated calls yield distinct
// paths.
func (s Spec) NewLog(uid string) string {
	if uid == "" {
		uid = ident.NewUID()
	}
	return fmt.Sprintf("%s-%s.log", s.LogBase, uid)
}

// SnapshotPath returns where the postmortem database snapshot is written.
func (s Spec) SnapshotPath() string {
	return filepath.Join(filepath.Dir(s.LogBase), s.UID+"-post.db")
}

// BuildLogger creates a file-backed zap logger at the spec's destination
// and verbosity.
func (s Spec) BuildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(s.LogLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{s.LogPath}
	cfg.ErrorOutputPaths = []string{s.LogPath}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture logger: %w", err)
	}
	return logger, nil
}
