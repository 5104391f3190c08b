// Package ipam implements the process-wide allocator of ephemeral network
// blocks handed out to test fixtures. IPv4 blocks are /24 subnets carved
// from a private base range, IPv6 blocks are /64 subnets. Every block
// obtained with Allocate must be returned with Free exactly once.
package ipam

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	// ErrExhausted is returned by Allocate when no free block remains.
	ErrExhausted = errors.New("ipam: address pool exhausted")

	// ErrNotAllocated is returned by Free for a block that is not
	// currently allocated from this pool (double free or foreign block).
	ErrNotAllocated = errors.New("ipam: block not allocated from this pool")

	// ErrUnknownFamily is returned for address families other than
	// AF_INET and AF_INET6.
	ErrUnknownFamily = errors.New("ipam: unknown address family")
)

const (
	// defaultV4Blocks caps the number of /24 blocks carved from the base
	// IPv4 range (one /16 worth).
	defaultV4Blocks = 256

	// defaultV6Blocks caps the number of /64 blocks carved from the base
	// IPv6 range.
	defaultV6Blocks = 1024
)

var (
	baseV4 = net.IPv4(10, 132, 0, 0).To4()
	baseV6 = net.ParseIP("fd7a:6a79::")
)

// Pool is a process-wide network block allocator. All methods are safe for
// concurrent use; sequential test contexts share a single Pool.
type Pool struct {
	mu        sync.Mutex
	free4     []int
	free6     []int
	allocated map[string]int
}

// Default is the shared allocator used by fixtures unless one is injected.
var Default = NewPool()

// NewPool returns a Pool with all blocks free.
func NewPool() *Pool {
	p := &Pool{
		free4:     make([]int, 0, defaultV4Blocks),
		free6:     make([]int, 0, defaultV6Blocks),
		allocated: make(map[string]int),
	}
	// Free lists are popped from the tail, so fill them in reverse to
	// hand out blocks in ascending order.
	for i := defaultV4Blocks - 1; i >= 0; i-- {
		p.free4 = append(p.free4, i)
	}
	for i := defaultV6Blocks - 1; i >= 0; i-- {
		p.free6 = append(p.free6, i)
	}
	return p
}

// Allocate hands out a free block for the given address family
// (unix.AF_INET or unix.AF_INET6).
func (p *Pool) Allocate(family int) (*net.IPNet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var block *net.IPNet
	switch family {
	case unix.AF_INET:
		if len(p.free4) == 0 {
			return nil, ErrExhausted
		}
		i := p.free4[len(p.free4)-1]
		p.free4 = p.free4[:len(p.free4)-1]
		block = v4Block(i)
	case unix.AF_INET6:
		if len(p.free6) == 0 {
			return nil, ErrExhausted
		}
		i := p.free6[len(p.free6)-1]
		p.free6 = p.free6[:len(p.free6)-1]
		block = v6Block(i)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFamily, family)
	}
	p.allocated[block.String()] = family
	return block, nil
}

// Free returns a previously allocated block to the pool.
func (p *Pool) Free(block *net.IPNet, family int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := block.String()
	got, ok := p.allocated[key]
	if !ok || got != family {
		return fmt.Errorf("%w: %s family %d", ErrNotAllocated, key, family)
	}
	delete(p.allocated, key)

	switch family {
	case unix.AF_INET:
		p.free4 = append(p.free4, int(block.IP.To4()[2]))
	case unix.AF_INET6:
		p.free6 = append(p.free6, int(block.IP[6])<<8|int(block.IP[7]))
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFamily, family)
	}
	return nil
}

// Allocated reports how many blocks are currently handed out.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated)
}

func v4Block(i int) *net.IPNet {
	ip := make(net.IP, 4)
	copy(ip, baseV4)
	ip[2] = byte(i)
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(24, 32)}
}

func v6Block(i int) *net.IPNet {
	ip := make(net.IP, 16)
	copy(ip, baseV6)
	ip[6] = byte(i >> 8)
	ip[7] = byte(i)
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(64, 128)}
}
