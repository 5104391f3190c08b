// Package fixture implements the resource-lifecycle context manager for
// network configuration tests. A Context allocates uniquely-named
// ephemeral resources (interfaces, network namespaces, address blocks,
// routing policy rules), records them in per-kind cleanup registries, and
// tears them down in fixed order with error-code-aware idempotent
// deletion.
package fixture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/easzlab/netfix/pkg/config"
	"github.com/easzlab/netfix/pkg/ident"
	"github.com/easzlab/netfix/pkg/ipam"
	"github.com/easzlab/netfix/pkg/ndb"
	"github.com/easzlab/netfix/pkg/nlctl"
	"github.com/easzlab/netfix/pkg/vsctl"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Execution target modes. Any other literal is passed through to the
// database collaborator unresolved.
const (
	TargetLocal = "local"
	TargetNetns = "netns"
)

// ErrAddrExhausted is returned when more addresses are requested from a
// pre-allocated IPv4 range than were provisioned.
var ErrAddrExhausted = errors.New("fixture: address range exhausted")

// ip6CounterStart is the first offset handed out from the IPv6 block,
// leaving the low addresses free for static assignments in tests.
const ip6CounterStart = 1024

// preallocV4Blocks is the number of IPv4 blocks materialized into address
// ranges at construction time.
const preallocV4Blocks = 3

// Interface is a (index, name) reference to a network interface.
type Interface struct {
	Index int
	Name  string
}

// Network is a normalized allocated-network descriptor.
type Network struct {
	Family    int
	Network   string
	Prefixlen int
}

// ruleEntry pairs a registered rule spec with its owning namespace.
type ruleEntry struct {
	netns string
	spec  nlctl.RuleSpec
}

// collaborators bundles the external dependencies of a Context so tests
// can substitute fakes.
type collaborators struct {
	factory    nlctl.Factory
	namespaces nlctl.Namespaces
	pool       *ipam.Pool
	openDB     func(ndb.Config, nlctl.Factory, *zap.Logger) (*ndb.DB, error)
	newProbe   func() (vsctl.Probe, error)
	privileged bool
}

// realCollaborators assembles the production collaborator set.
func realCollaborators() collaborators {
	return collaborators{
		factory:    nlctl.NewFactory(),
		namespaces: nlctl.NewNamespaces(),
		pool:       ipam.Default,
		openDB:     ndb.Open,
		newProbe:   vsctl.NewProbe,
		privileged: os.Geteuid() == 0,
	}
}

// Context is one test's resource universe. It is created once per test
// invocation, never shared between tests, and torn down exactly once.
type Context struct {
	Spec   Spec
	Params Params

	// Netns is the owning namespace name for the netns target mode,
	// empty otherwise.
	Netns string

	// DefaultInterface is a real dummy interface when running
	// privileged, the loopback interface otherwise.
	DefaultInterface Interface

	db     *ndb.DB
	ipr    nlctl.Handle
	probe  vsctl.Probe
	logger *zap.Logger
	collab collaborators

	// Per-kind cleanup registries, owned exclusively by this context.
	interfaces map[string]string
	namespaces map[string]struct{}
	rules      []ruleEntry

	// Pre-allocated address blocks and their materialized pools.
	ipnets     []*net.IPNet
	ipranges   [][]string
	ip6net     *net.IPNet
	ip6counter uint64

	// Explicitly registered blocks, released per family on teardown.
	allocatedNets map[int][]*net.IPNet

	tornDown bool
}

// New builds a Context against the real system: it resolves the target
// mode, opens the configuration database and its cloned control handle,
// opens the capability probe, and pre-allocates the address blocks.
// baseDir locates session artifacts (logs, database snapshots); an empty
// value selects the system temp directory. A nil logger builds a
// file-backed one at the spec's log destination.
func New(params Params, env config.Env, baseDir string, logger *zap.Logger) (*Context, error) {
	return newContext(params, env, baseDir, logger, realCollaborators())
}

func newContext(params Params, env config.Env, baseDir string, logger *zap.Logger, collab collaborators) (*Context, error) {
	c := &Context{
		Spec:          NewSpec(baseDir),
		Params:        params,
		collab:        collab,
		interfaces:    make(map[string]string),
		namespaces:    make(map[string]struct{}),
		allocatedNets: make(map[int][]*net.IPNet),
		ip6counter:    ip6CounterStart,
	}

	if logger == nil {
		built, err := c.Spec.BuildLogger()
		if err != nil {
			return nil, err
		}
		logger = built
	}
	c.logger = logger.Named("fixture")

	// Resolve the target mode into a source descriptor. The netns target
	// allocates and registers an owning namespace before anything else,
	// so teardown removes it even if the test body never touches it.
	var sources []ndb.SourceSpec
	switch params.Target {
	case TargetLocal, "":
		sources = []ndb.SourceSpec{{Target: "localhost", Kind: "local"}}
	case TargetNetns:
		c.Netns = c.RegisterNetns("")
		sources = []ndb.SourceSpec{{Target: "localhost", Kind: "netns", Netns: c.Netns}}
	default:
		// Unresolved target literal: no source list, the database
		// collaborator decides what it means.
	}

	// Database selection precedence: environment override, then the
	// requested params, then the in-memory sqlite default.
	dbCfg := ndb.Config{
		Provider: config.ProviderSQLite,
		Spec:     config.DefaultDBSpec,
		Sources:  sources,
	}
	if params.DBProvider != "" {
		dbCfg.Provider = params.DBProvider
		dbCfg.Spec = params.DBSpec
		if params.DBProvider == config.ProviderPostgres {
			dbCfg.Params = env.PostgresParams(params.DBSpec)
		}
	}
	if env.ForcedDBName != "" {
		dbCfg.Provider = config.ProviderPostgres
		dbCfg.Spec = env.ForcedDBName
		dbCfg.Params = env.PostgresParams(env.ForcedDBName)
	}
	c.Params.DBProvider = dbCfg.Provider
	c.Params.DBSpec = dbCfg.Spec

	db, err := collab.openDB(dbCfg, collab.factory, c.logger.Named("ndb"))
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration database: %w", err)
	}
	c.db = db

	// The cloned control handle for direct interface manipulation; the
	// database instance itself is under test and must not be used for
	// utility operations.
	source, err := db.Source("localhost")
	if err == nil {
		c.ipr, err = source.Clone()
	}
	if err != nil {
		closeErr := db.Close()
		return nil, multierr.Append(
			fmt.Errorf("failed to clone control handle: %w", err), closeErr)
	}

	c.probe, err = collab.newProbe()
	if err != nil {
		closeErr := multierr.Append(c.ipr.Close(), db.Close())
		return nil, multierr.Append(
			fmt.Errorf("failed to open capability probe: %w", err), closeErr)
	}

	if err := c.preallocate(); err != nil {
		closeErr := multierr.Combine(c.probe.Close(), c.ipr.Close(), db.Close())
		return nil, multierr.Append(err, closeErr)
	}

	if err := c.setupDefaultInterface(); err != nil {
		teardownErr := c.Teardown()
		return nil, multierr.Append(err, teardownErr)
	}

	c.logger.Debug("context ready",
		zap.String("uid", c.Spec.UID),
		zap.String("params", c.Params.ID()),
		zap.String("netns", c.Netns),
	)
	return c, nil
}

// preallocate obtains three IPv4 blocks and one IPv6 block from the
// global allocator and materializes the IPv4 address pools.
func (c *Context) preallocate() error {
	for i := 0; i < preallocV4Blocks; i++ {
		block, err := c.collab.pool.Allocate(unix.AF_INET)
		if err != nil {
			return fmt.Errorf("failed to pre-allocate IPv4 block: %w", err)
		}
		c.ipnets = append(c.ipnets, block)
		c.ipranges = append(c.ipranges, hostAddrs(block))
	}
	block, err := c.collab.pool.Allocate(unix.AF_INET6)
	if err != nil {
		return fmt.Errorf("failed to pre-allocate IPv6 block: %w", err)
	}
	c.ip6net = block
	return nil
}

// setupDefaultInterface creates a committed dummy interface when running
// privileged, and falls back to loopback otherwise.
func (c *Context) setupDefaultInterface() error {
	if !c.collab.privileged {
		c.DefaultInterface = Interface{Index: 1, Name: "lo"}
		return nil
	}
	ifname := c.NewIfname()
	iface, err := c.db.CreateInterface("dummy", ifname, "up")
	if err != nil {
		return fmt.Errorf("failed to create default interface: %w", err)
	}
	c.DefaultInterface = Interface{Index: iface.Index, Name: iface.Name}
	return nil
}

// Register records an interface in the cleanup registry and returns its
// name, generating a unique one when ifname is empty. Registration is
// bookkeeping only; creating the interface is the caller's business.
// netns names the owning namespace, empty for the default one.
func (c *Context) Register(ifname, netns string) string {
	if ifname == "" {
		ifname = ident.NewIfname()
	}
	c.interfaces[ifname] = netns
	return ifname
}

// RegisterNetns records a namespace for removal on teardown and returns
// its name, generating a unique one when name is empty. The namespace
// need not exist; absence at teardown is not an error.
func (c *Context) RegisterNetns(name string) string {
	if name == "" {
		name = ident.NewNsname()
	}
	c.namespaces[name] = struct{}{}
	return name
}

// RegisterRule records a routing policy rule for removal on teardown and
// returns the spec unchanged.
func (c *Context) RegisterRule(spec nlctl.RuleSpec, netns string) nlctl.RuleSpec {
	c.rules = append(c.rules, ruleEntry{netns: netns, spec: spec})
	return spec
}

// RegisterNetwork records a network block for release on teardown. A nil
// block allocates a fresh one from the global pool for the given family.
func (c *Context) RegisterNetwork(family int, block *net.IPNet) (Network, error) {
	if block == nil {
		allocated, err := c.collab.pool.Allocate(family)
		if err != nil {
			return Network{}, fmt.Errorf("failed to allocate network: %w", err)
		}
		block = allocated
	}
	c.allocatedNets[family] = append(c.allocatedNets[family], block)
	prefixlen, _ := block.Mask.Size()
	return Network{Family: family, Network: block.IP.String(), Prefixlen: prefixlen}, nil
}

// GetIPAddr pops the next address from the pre-allocated IPv4 range r.
// Addresses are never reissued within a context; exhausting the range is
// an explicit error.
func (c *Context) GetIPAddr(r int) (string, error) {
	if r < 0 || r >= len(c.ipranges) {
		return "", fmt.Errorf("no pre-allocated IPv4 range %d", r)
	}
	pool := c.ipranges[r]
	if len(pool) == 0 {
		return "", fmt.Errorf("%w: range %d (%s)", ErrAddrExhausted, r, c.ipnets[r])
	}
	addr := pool[len(pool)-1]
	c.ipranges[r] = pool[:len(pool)-1]
	return addr, nil
}

// GetIP6Addr returns the next address from the pre-allocated IPv6 block.
// The monotonic counter never repeats a value within a context.
func (c *Context) GetIP6Addr() string {
	addr := ip6At(c.ip6net, c.ip6counter)
	c.ip6counter++
	return addr
}

// NewIfname returns a new unique interface name registered for cleanup.
func (c *Context) NewIfname() string {
	return c.Register("", "")
}

// NewNsname returns a new unique namespace name registered for removal.
func (c *Context) NewNsname() string {
	return c.RegisterNetns("")
}

// NewIPAddr returns a new address from the first pre-allocated IPv4 range.
func (c *Context) NewIPAddr() (string, error) {
	return c.GetIPAddr(0)
}

// NewIP6Addr returns a new address from the pre-allocated IPv6 block.
func (c *Context) NewIP6Addr() string {
	return c.GetIP6Addr()
}

// NewIP4Net allocates and registers a fresh IPv4 network block.
func (c *Context) NewIP4Net() (Network, error) {
	return c.RegisterNetwork(unix.AF_INET, nil)
}

// NewIP6Net allocates and registers a fresh IPv6 network block.
func (c *Context) NewIP6Net() (Network, error) {
	return c.RegisterNetwork(unix.AF_INET6, nil)
}

// NewLog returns a fresh log path under the session base.
func (c *Context) NewLog() string {
	return c.Spec.NewLog("")
}

// DB exposes the configuration database under test.
func (c *Context) DB() *ndb.DB {
	return c.db
}

// Ipr exposes the cloned low-level control handle.
func (c *Context) Ipr() nlctl.Handle {
	return c.ipr
}

// Probe exposes the capability-probe collaborator.
func (c *Context) Probe() vsctl.Probe {
	return c.probe
}

// hostAddrs materializes the host addresses of a /24 block, ordered so
// that popping from the tail hands out descending addresses.
func hostAddrs(block *net.IPNet) []string {
	base := block.IP.To4()
	out := make([]string, 0, 254)
	for i := 1; i <= 254; i++ {
		out = append(out, net.IPv4(base[0], base[1], base[2], byte(i)).String())
	}
	return out
}

// ip6At returns the address at the given offset inside a /64 block.
func ip6At(block *net.IPNet, offset uint64) string {
	ip := make(net.IP, net.IPv6len)
	copy(ip, block.IP.To16())
	host := binary.BigEndian.Uint64(ip[8:]) + offset
	binary.BigEndian.PutUint64(ip[8:], host)
	return ip.String()
}
