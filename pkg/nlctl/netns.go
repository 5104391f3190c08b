package nlctl

import (
	"fmt"
	"sync"

	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// Namespaces is the named network namespace primitive. Remove fails with
// a not-found error (see IsNotFound) when the namespace does not exist.
type Namespaces interface {
	Remove(name string) error
}

// namedNamespaces removes namespaces registered under /var/run/netns.
type namedNamespaces struct{}

// NewNamespaces returns the real namespace primitive.
func NewNamespaces() Namespaces {
	return namedNamespaces{}
}

func (namedNamespaces) Remove(name string) error {
	return netns.DeleteNamed(name)
}

// FakeNamespaces tracks namespace names in memory for unit tests.
type FakeNamespaces struct {
	mu      sync.Mutex
	names   map[string]bool
	Removed []string
}

// NewFakeNamespaces returns an empty FakeNamespaces.
func NewFakeNamespaces() *FakeNamespaces {
	return &FakeNamespaces{names: make(map[string]bool)}
}

// Add seeds the fake with an existing namespace.
func (f *FakeNamespaces) Add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[name] = true
}

// Has reports whether the namespace currently exists.
func (f *FakeNamespaces) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[name]
}

// Remove deletes the namespace. Removing an absent namespace reports a
// not-found error, matching the real primitive.
func (f *FakeNamespaces) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, name)
	if !f.names[name] {
		return fmt.Errorf("netns %q: %w", name, unix.ENOENT)
	}
	delete(f.names, name)
	return nil
}
