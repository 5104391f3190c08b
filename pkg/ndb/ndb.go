// Package ndb is the configuration-database collaborator of the test
// fixtures: it tracks committed network object state in a SQL store and
// issues the actual creation requests through a control handle.
//
// The default provider is an in-memory sqlite database (modernc.org/sqlite
// via database/sql). Other providers are routed by driver name; linking
// the driver is the caller's responsibility.
package ndb

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/easzlab/netfix/pkg/config"
	"github.com/easzlab/netfix/pkg/nlctl"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SourceSpec describes one event/control source of the database.
type SourceSpec struct {
	// Target is the source name, conventionally "localhost".
	Target string

	// Kind is "local" for the default namespace or "netns" for a named one.
	Kind string

	// Netns is the namespace name when Kind is "netns".
	Netns string
}

// Config selects the backing store and the control sources.
type Config struct {
	// Provider is a database provider name (config.ProviderSQLite or
	// config.ProviderPostgres).
	Provider string

	// Spec is the provider-specific database spec: a path or ":memory:"
	// for sqlite, a database name otherwise.
	Spec string

	// Params carries connection parameters for non-sqlite providers.
	Params map[string]string

	// Sources lists the control sources; nil lets the database fall back
	// to a single local source.
	Sources []SourceSpec
}

// Interface is a committed interface descriptor.
type Interface struct {
	Index int
	Name  string
	Kind  string
	State string
}

// DB is an open configuration database.
type DB struct {
	provider string
	db       *sql.DB
	factory  nlctl.Factory
	sources  map[string]*Source
	logger   *zap.Logger
}

// Source is a named control source of the database. Clone opens a fresh
// low-level control handle scoped to the source's namespace; the caller
// owns the returned handle.
type Source struct {
	spec    SourceSpec
	factory nlctl.Factory
}

// Clone returns a new control handle bound to this source.
func (s *Source) Clone() (nlctl.Handle, error) {
	return s.factory.Handle(s.spec.Netns)
}

// Netns returns the namespace this source is bound to, empty for local.
func (s *Source) Netns() string {
	return s.spec.Netns
}

// Open connects to the configured database, applies the schema, and binds
// the control sources. The factory supplies control handles for commits.
func Open(cfg Config, factory nlctl.Factory, logger *zap.Logger) (*DB, error) {
	driver, dataSource, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Provider, err)
	}
	// An in-memory sqlite database exists per connection; a second
	// connection would see an empty schema.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, multierr.Append(
			fmt.Errorf("failed to apply schema: %w", err), closeErr)
	}

	sources := cfg.Sources
	if len(sources) == 0 {
		sources = []SourceSpec{{Target: "localhost", Kind: "local"}}
	}
	byName := make(map[string]*Source, len(sources))
	for _, spec := range sources {
		byName[spec.Target] = &Source{spec: spec, factory: factory}
	}

	logger.Debug("configuration database opened",
		zap.String("provider", cfg.Provider),
		zap.String("spec", cfg.Spec),
		zap.Int("sources", len(sources)),
	)

	return &DB{
		provider: cfg.Provider,
		db:       db,
		factory:  factory,
		sources:  byName,
		logger:   logger,
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS interfaces (
    id      INTEGER PRIMARY KEY,
    target  TEXT NOT NULL,
    ifname  TEXT NOT NULL,
    kind    TEXT NOT NULL,
    state   TEXT NOT NULL,
    ifindex INTEGER NOT NULL
);
`

// dataSourceName maps a Config onto a database/sql driver and DSN.
func dataSourceName(cfg Config) (driver, dsn string, err error) {
	switch cfg.Provider {
	case config.ProviderSQLite, "":
		spec := cfg.Spec
		if spec == "" {
			spec = config.DefaultDBSpec
		}
		return "sqlite", sqliteDSN(spec), nil
	case config.ProviderPostgres:
		return "postgres", postgresDSN(cfg), nil
	default:
		return "", "", fmt.Errorf("unknown database provider %q", cfg.Provider)
	}
}

// sqliteDSN appends the busy-timeout pragma; WAL is pointless for the
// short-lived per-test databases.
func sqliteDSN(spec string) string {
	return spec + "?_pragma=busy_timeout(5000)"
}

// postgresDSN renders the connection parameters in key=value form, sorted
// for determinism.
func postgresDSN(cfg Config) string {
	params := make(map[string]string, len(cfg.Params)+1)
	for k, v := range cfg.Params {
		params[k] = v
	}
	if _, ok := params["dbname"]; !ok && cfg.Spec != "" {
		params["dbname"] = cfg.Spec
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}

// Provider returns the configured provider name.
func (d *DB) Provider() string {
	return d.provider
}

// Source returns the named control source.
func (d *DB) Source(name string) (*Source, error) {
	s, ok := d.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", name)
	}
	return s, nil
}

// CreateInterface creates an interface through the localhost source's
// control handle and commits the resulting descriptor to the database.
func (d *DB) CreateInterface(kind, name, state string) (Interface, error) {
	source, err := d.Source("localhost")
	if err != nil {
		return Interface{}, err
	}
	handle, err := source.Clone()
	if err != nil {
		return Interface{}, fmt.Errorf("failed to clone control handle: %w", err)
	}
	defer handle.Close()

	index, err := handle.LinkAdd(kind, name, state == "up")
	if err != nil {
		return Interface{}, fmt.Errorf("failed to create %s interface %q: %w", kind, name, err)
	}

	if _, err := d.db.Exec(
		`INSERT INTO interfaces (target, ifname, kind, state, ifindex) VALUES (?, ?, ?, ?, ?)`,
		source.spec.Target, name, kind, state, index,
	); err != nil {
		return Interface{}, fmt.Errorf("failed to commit interface %q: %w", name, err)
	}

	d.logger.Debug("interface committed",
		zap.String("ifname", name),
		zap.String("kind", kind),
		zap.Int("index", index),
	)
	return Interface{Index: index, Name: name, Kind: kind, State: state}, nil
}

// InterfaceCount returns the number of committed interfaces.
func (d *DB) InterfaceCount() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM interfaces`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count interfaces: %w", err)
	}
	return n, nil
}

// Backup writes a consistent snapshot of a sqlite database to path.
func (d *DB) Backup(path string) error {
	if d.provider != config.ProviderSQLite && d.provider != "" {
		return fmt.Errorf("backup not supported for provider %q", d.provider)
	}
	if _, err := d.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("failed to snapshot database to %s: %w", path, err)
	}
	return nil
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
