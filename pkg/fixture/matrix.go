package fixture

import (
	"fmt"
	"strings"

	"github.com/easzlab/netfix/pkg/config"
)

// Params selects the database, execution target, and optional table and
// kind for one parametrized test context.
type Params struct {
	DBProvider string
	DBSpec     string
	Target     string
	Table      string
	Kind       string
}

// ID renders the human-readable parameter identifier, of the form
// "db=<provider>/<spec> target=<mode>[ table=<t>][ kind=<k>]".
func (p Params) ID() string {
	var b strings.Builder
	fmt.Fprintf(&b, "db=%s/%s target=%s", p.DBProvider, p.DBSpec, p.Target)
	if p.Table != "" {
		fmt.Fprintf(&b, " table=%s", p.Table)
	}
	if p.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", p.Kind)
	}
	return b.String()
}

// MatrixOptions configures MakeTestMatrix. Nil slices take the defaults:
// one local target against an in-memory sqlite database, no table or kind
// variants.
type MatrixOptions struct {
	Targets []string
	Tables  []string
	DBs     []string // "provider/spec" entries
	Kinds   []string
	Env     config.Env
}

// MakeTestMatrix builds the cross product of databases, targets, tables,
// and kinds, excluding database providers named by the environment skip
// list.
func MakeTestMatrix(opts MatrixOptions) []Params {
	targets := opts.Targets
	if len(targets) == 0 {
		targets = []string{TargetLocal}
	}
	tables := opts.Tables
	if len(tables) == 0 {
		tables = []string{""}
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []string{""}
	}
	dbs := opts.DBs
	if len(dbs) == 0 {
		dbs = []string{config.ProviderSQLite + "/" + config.DefaultDBSpec}
	}

	var out []Params
	for _, db := range dbs {
		provider, spec, _ := strings.Cut(db, "/")
		if opts.Env.Skipped(provider) {
			continue
		}
		for _, target := range targets {
			for _, table := range tables {
				for _, kind := range kinds {
					out = append(out, Params{
						DBProvider: provider,
						DBSpec:     spec,
						Target:     target,
						Table:      table,
						Kind:       kind,
					})
				}
			}
		}
	}
	return out
}
