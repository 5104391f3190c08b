// Package config reads the environment-driven test configuration once at
// the process boundary and exposes it as an explicit struct. Nothing else
// in the module consults the environment directly.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Database provider names understood by the fixture layer.
const (
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
)

// DefaultDBSpec is the in-memory sqlite spec used when nothing overrides it.
const DefaultDBSpec = ":memory:"

// Env holds the environment-sourced test configuration.
type Env struct {
	// SkipDB lists database provider prefixes to exclude from the test
	// matrix. Sourced from SKIPDB, colon-separated.
	SkipDB []string

	// ForcedDBName, when non-empty, forces every context onto the
	// postgres provider with this database name, overriding whatever the
	// test matrix requested. Sourced from NETFIX_TEST_DBNAME.
	ForcedDBName string

	// Connection parameters for non-default database providers.
	PGUser string
	PGHost string
	PGPort string
}

// Load reads the environment once and returns the resulting Env.
func Load() Env {
	v := viper.New()
	v.AutomaticEnv()
	for _, key := range []string{"SKIPDB", "NETFIX_TEST_DBNAME", "PGUSER", "PGHOST", "PGPORT"} {
		// AutomaticEnv alone does not register keys for IsSet/GetString
		// without a config file, so bind each one explicitly.
		_ = v.BindEnv(key)
	}

	env := Env{
		ForcedDBName: v.GetString("NETFIX_TEST_DBNAME"),
		PGUser:       v.GetString("PGUSER"),
		PGHost:       v.GetString("PGHOST"),
		PGPort:       v.GetString("PGPORT"),
	}
	for _, p := range strings.Split(v.GetString("SKIPDB"), ":") {
		if p != "" {
			env.SkipDB = append(env.SkipDB, p)
		}
	}
	return env
}

// Skipped reports whether the given database provider matches an entry of
// the skip list. Matching is by prefix, so SKIPDB=postgres skips both
// "postgres" and "postgres14".
func (e Env) Skipped(provider string) bool {
	for _, p := range e.SkipDB {
		if strings.HasPrefix(provider, p) {
			return true
		}
	}
	return false
}

// PostgresParams builds the connection parameter map for the postgres
// provider from the PG* variables. A host without a port defaults the port
// to 5432; a port without a host defaults the host to localhost.
func (e Env) PostgresParams(dbname string) map[string]string {
	params := map[string]string{"dbname": dbname}
	if e.PGUser != "" {
		params["user"] = e.PGUser
	}
	if e.PGHost != "" {
		params["host"] = e.PGHost
		if e.PGPort == "" {
			params["port"] = "5432"
		}
	}
	if e.PGPort != "" {
		params["port"] = e.PGPort
		if e.PGHost == "" {
			params["host"] = "localhost"
		}
	}
	return params
}
