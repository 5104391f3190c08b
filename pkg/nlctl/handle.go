// Package nlctl provides the low-level control handle used to enumerate
// and delete network objects directly: link lookup and removal, routing
// policy rules, and named network namespaces.
//
// On Linux the handle wraps a real netlink socket, optionally scoped to a
// named network namespace. On other systems, and in unit tests, an
// in-memory fake stands in.
package nlctl

import (
	"errors"
	"fmt"
	"os"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Handle is a control socket for direct network object manipulation.
// A Handle must be closed after use; one Handle serves one namespace.
type Handle interface {
	// LinkLookup returns the indices of interfaces with the given name.
	// An absent interface yields an empty slice, not an error.
	LinkLookup(name string) ([]int, error)

	// LinkAdd creates an interface of the given kind and returns its
	// assigned index. Unsupported kinds report EOPNOTSUPP.
	LinkAdd(kind, name string, up bool) (int, error)

	// LinkList enumerates all interfaces as a name to index mapping.
	LinkList() (map[string]int, error)

	// LinkDel removes the interface with the given index.
	LinkDel(index int) error

	// RuleAdd installs a routing policy rule.
	RuleAdd(spec RuleSpec) error

	// RuleDel removes a routing policy rule.
	RuleDel(spec RuleSpec) error

	// Close releases the underlying socket.
	Close() error
}

// Factory creates handles scoped to a namespace. The empty namespace name
// selects the default (current) namespace.
type Factory interface {
	Handle(nsname string) (Handle, error)
}

// RuleSpec describes a routing policy rule by its match and action fields.
// Zero values mean "unset" and are omitted from the netlink request.
type RuleSpec struct {
	Family   int
	Priority int
	Table    int
	Src      string
	Dst      string
	IifName  string
	OifName  string
	FwMark   uint32
}

// Key renders a stable identity for the rule, used by fakes and logging.
func (s RuleSpec) Key() string {
	return fmt.Sprintf("f%d/p%d/t%d/src=%s/dst=%s/iif=%s/oif=%s/mark=%d",
		s.Family, s.Priority, s.Table, s.Src, s.Dst, s.IifName, s.OifName, s.FwMark)
}

// IsNotFound reports whether err means the target object does not exist:
// ENODEV or ENOENT from the kernel, a netlink link-not-found error, or a
// missing namespace file.
func IsNotFound(err error) bool {
	var linkErr netlink.LinkNotFoundError
	if errors.As(err, &linkErr) {
		return true
	}
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.ENODEV || errno == unix.ENOENT
	}
	return false
}

// IsNotImplemented reports whether err means the operation is absent from
// the collaborator surface entirely (as opposed to unsupported by the
// running kernel).
func IsNotImplemented(err error) bool {
	return errors.Is(err, netlink.ErrNotImplemented)
}

// IsUnsupported reports whether err means the running kernel or platform
// lacks the requested feature.
func IsUnsupported(err error) bool {
	if errors.Is(err, netlink.ErrNotImplemented) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EOPNOTSUPP || errno == unix.ENOENT
	}
	return false
}
