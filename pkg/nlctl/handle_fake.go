package nlctl

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Fake is an in-memory Handle implementation used in unit tests and on
// non-Linux systems. It mirrors kernel error codes: deleting an absent
// link reports ENODEV, deleting an absent rule reports ENOENT.
type Fake struct {
	// LinkDelErr and RuleDelErr, when set, force the corresponding
	// delete operation to fail. Tests use them to exercise unexpected
	// teardown failures.
	LinkDelErr error
	RuleDelErr error

	mu        sync.Mutex
	nextIndex int
	links     map[string]int
	rules     map[string]RuleSpec
	closed    bool
}

// NewFake returns an empty fake handle.
func NewFake() *Fake {
	return &Fake{
		nextIndex: 2,
		links:     make(map[string]int),
		rules:     make(map[string]RuleSpec),
	}
}

// AddLink seeds the fake with an interface and returns its index.
func (f *Fake) AddLink(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index, ok := f.links[name]; ok {
		return index
	}
	index := f.nextIndex
	f.nextIndex++
	f.links[name] = index
	return index
}

// HasLink reports whether an interface with the given name exists.
func (f *Fake) HasLink(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[name]
	return ok
}

// Rules returns a snapshot of the installed rules.
func (f *Fake) Rules() []RuleSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RuleSpec, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) LinkLookup(name string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index, ok := f.links[name]; ok {
		return []int{index}, nil
	}
	return nil, nil
}

// LinkAdd creates an in-memory interface. The fake accepts any kind except
// the empty string, which reports EOPNOTSUPP for guard testing.
func (f *Fake) LinkAdd(kind, name string, up bool) (int, error) {
	if kind == "" {
		return 0, fmt.Errorf("link kind %q: %w", kind, unix.EOPNOTSUPP)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[name]; ok {
		return 0, fmt.Errorf("link %q exists: %w", name, unix.EEXIST)
	}
	index := f.nextIndex
	f.nextIndex++
	f.links[name] = index
	return index, nil
}

func (f *Fake) LinkDel(index int) error {
	if f.LinkDelErr != nil {
		return f.LinkDelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, i := range f.links {
		if i == index {
			delete(f.links, name)
			return nil
		}
	}
	return fmt.Errorf("no link with index %d: %w", index, unix.ENODEV)
}

func (f *Fake) LinkList() (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.links))
	for name, index := range f.links {
		out[name] = index
	}
	return out, nil
}

func (f *Fake) RuleAdd(spec RuleSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[spec.Key()] = spec
	return nil
}

func (f *Fake) RuleDel(spec RuleSpec) error {
	if f.RuleDelErr != nil {
		return f.RuleDelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[spec.Key()]; !ok {
		return fmt.Errorf("no such rule %s: %w", spec.Key(), unix.ENOENT)
	}
	delete(f.rules, spec.Key())
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FakeFactory hands out one shared Fake per namespace name, so a test can
// inspect the state a context left behind in any namespace.
type FakeFactory struct {
	mu      sync.Mutex
	handles map[string]*Fake
}

// NewFakeFactory returns an empty FakeFactory.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{handles: make(map[string]*Fake)}
}

// Handle returns the Fake scoped to nsname, creating it on first use.
func (ff *FakeFactory) Handle(nsname string) (Handle, error) {
	return ff.Fake(nsname), nil
}

// Fake returns the underlying fake for direct inspection.
func (ff *FakeFactory) Fake(nsname string) *Fake {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.handles[nsname]
	if !ok {
		f = NewFake()
		ff.handles[nsname] = f
	}
	return f
}
