//go:build linux

package nlctl

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// linuxHandle wraps a real netlink socket, optionally bound to a named
// network namespace.
type linuxHandle struct {
	h *netlink.Handle
}

// linuxFactory creates netlink handles in the requested namespace.
type linuxFactory struct{}

// NewFactory returns a Factory producing real netlink handles.
func NewFactory() Factory {
	return linuxFactory{}
}

func (linuxFactory) Handle(nsname string) (Handle, error) {
	if nsname == "" {
		h, err := netlink.NewHandle()
		if err != nil {
			return nil, fmt.Errorf("failed to create netlink handle: %w", err)
		}
		return &linuxHandle{h: h}, nil
	}

	ns, err := netns.GetFromName(nsname)
	if err != nil {
		return nil, fmt.Errorf("failed to open netns %q: %w", nsname, err)
	}
	defer ns.Close()

	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nil, fmt.Errorf("failed to create netlink handle in netns %q: %w", nsname, err)
	}
	return &linuxHandle{h: h}, nil
}

func (l *linuxHandle) LinkLookup(name string) ([]int, error) {
	link, err := l.h.LinkByName(name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up link %q: %w", name, err)
	}
	return []int{link.Attrs().Index}, nil
}

func (l *linuxHandle) LinkAdd(kind, name string, up bool) (int, error) {
	var link netlink.Link
	attrs := netlink.NewLinkAttrs()
	attrs.Name = name
	switch kind {
	case "dummy":
		link = &netlink.Dummy{LinkAttrs: attrs}
	case "bridge":
		link = &netlink.Bridge{LinkAttrs: attrs}
	default:
		return 0, fmt.Errorf("link kind %q: %w", kind, unix.EOPNOTSUPP)
	}
	if err := l.h.LinkAdd(link); err != nil {
		return 0, fmt.Errorf("failed to add %s link %q: %w", kind, name, err)
	}
	created, err := l.h.LinkByName(name)
	if err != nil {
		return 0, fmt.Errorf("failed to look up created link %q: %w", name, err)
	}
	if up {
		if err := l.h.LinkSetUp(created); err != nil {
			return 0, fmt.Errorf("failed to bring up link %q: %w", name, err)
		}
	}
	return created.Attrs().Index, nil
}

func (l *linuxHandle) LinkDel(index int) error {
	link, err := l.h.LinkByIndex(index)
	if err != nil {
		return err
	}
	return l.h.LinkDel(link)
}

func (l *linuxHandle) LinkList() (map[string]int, error) {
	links, err := l.h.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	out := make(map[string]int, len(links))
	for _, link := range links {
		out[link.Attrs().Name] = link.Attrs().Index
	}
	return out, nil
}

func (l *linuxHandle) RuleAdd(spec RuleSpec) error {
	rule, err := toNetlinkRule(spec)
	if err != nil {
		return err
	}
	return l.h.RuleAdd(rule)
}

func (l *linuxHandle) RuleDel(spec RuleSpec) error {
	rule, err := toNetlinkRule(spec)
	if err != nil {
		return err
	}
	return l.h.RuleDel(rule)
}

func (l *linuxHandle) Close() error {
	l.h.Close()
	return nil
}

// toNetlinkRule converts a RuleSpec into a netlink rule, parsing the
// CIDR selectors.
func toNetlinkRule(spec RuleSpec) (*netlink.Rule, error) {
	rule := netlink.NewRule()
	if spec.Family != 0 {
		rule.Family = spec.Family
	}
	if spec.Priority != 0 {
		rule.Priority = spec.Priority
	}
	if spec.Table != 0 {
		rule.Table = spec.Table
	}
	if spec.IifName != "" {
		rule.IifName = spec.IifName
	}
	if spec.OifName != "" {
		rule.OifName = spec.OifName
	}
	if spec.FwMark != 0 {
		rule.Mark = spec.FwMark
	}
	if spec.Src != "" {
		_, src, err := net.ParseCIDR(spec.Src)
		if err != nil {
			return nil, fmt.Errorf("invalid rule src %q: %w", spec.Src, err)
		}
		rule.Src = src
	}
	if spec.Dst != "" {
		_, dst, err := net.ParseCIDR(spec.Dst)
		if err != nil {
			return nil, fmt.Errorf("invalid rule dst %q: %w", spec.Dst, err)
		}
		rule.Dst = dst
	}
	return rule, nil
}
