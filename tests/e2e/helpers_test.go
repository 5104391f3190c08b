//go:build linux

package e2e

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/vishvananda/netlink"
)

// skipIfNotRoot skips the test if not running as root.
// Interface creation and removal require CAP_NET_ADMIN.
func skipIfNotRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("skipping: test requires root privileges")
	}
}

// runNetfix executes the netfix binary with the given arguments and
// asserts a successful exit. Returns the combined stdout and stderr.
func runNetfix(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(netfixBinary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("netfix %v failed: %v\nstdout: %s\nstderr: %s",
			args, err, stdout.String(), stderr.String())
	}
	return stdout.String() + stderr.String()
}

// addDummyLink creates a dummy interface and registers its removal as a
// cleanup, in case the test body fails before purging it.
func addDummyLink(t *testing.T, name string) {
	t.Helper()
	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(link); err != nil {
		t.Fatalf("failed to create dummy link %q: %v", name, err)
	}
	t.Cleanup(func() {
		if l, err := netlink.LinkByName(name); err == nil {
			_ = netlink.LinkDel(l)
		}
	})
}

// hasLink reports whether an interface with the given name exists.
func hasLink(t *testing.T, name string) bool {
	t.Helper()
	_, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return false
		}
		t.Fatalf("failed to look up link %q: %v", name, err)
	}
	return true
}
