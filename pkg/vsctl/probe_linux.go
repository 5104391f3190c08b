//go:build linux

package vsctl

import (
	"fmt"

	mobyipvs "github.com/moby/ipvs"
)

// linuxProbe wraps the real moby/ipvs netlink handle.
type linuxProbe struct {
	handle *mobyipvs.Handle
}

// NewProbe opens a virtual-service probe against the running kernel.
func NewProbe() (Probe, error) {
	handle, err := mobyipvs.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create ipvs handle: %w", err)
	}
	return &linuxProbe{handle: handle}, nil
}

func (p *linuxProbe) ServiceCount() (int, error) {
	services, err := p.handle.GetServices()
	if err != nil {
		return 0, fmt.Errorf("failed to get ipvs services: %w", err)
	}
	return len(services), nil
}

func (p *linuxProbe) Close() error {
	p.handle.Close()
	return nil
}
