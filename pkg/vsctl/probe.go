// Package vsctl wraps the kernel virtual-service (IPVS) controller as a
// capability probe. Test fixtures open one probe per context and use it to
// detect whether the running kernel supports virtual-service features,
// skipping instead of failing where it does not.
package vsctl

import "sync"

// Probe enumerates kernel virtual services. Errors from ServiceCount are
// classified by the fixture's capability guards: an unsupported kernel
// yields a skip, not a failure.
type Probe interface {
	// ServiceCount returns the number of configured virtual services.
	ServiceCount() (int, error)

	// Close releases the underlying netlink socket.
	Close() error
}

// FakeProbe is an in-memory Probe for unit tests.
type FakeProbe struct {
	mu       sync.Mutex
	Services int
	Err      error
	closed   bool
}

// NewFakeProbe returns a FakeProbe reporting zero services.
func NewFakeProbe() *FakeProbe {
	return &FakeProbe{}
}

func (f *FakeProbe) ServiceCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Services, nil
}

func (f *FakeProbe) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *FakeProbe) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
