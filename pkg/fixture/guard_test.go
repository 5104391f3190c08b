package fixture

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

// notReadyError mimics a collaborator error that requests a soft skip.
type notReadyError struct {
	reason string
}

func (e *notReadyError) Error() string {
	return e.reason
}

func (e *notReadyError) SkipReason() string {
	return e.reason
}

func TestIfSupported_Ok(t *testing.T) {
	outcome := IfSupported(func() error { return nil })
	if _, skipped := outcome.Skipped(); skipped {
		t.Fatal("expected Ok outcome, got skip")
	}
	if outcome.Err() != nil {
		t.Fatalf("expected Ok outcome, got error %v", outcome.Err())
	}
}

func TestIfSupported_OpNotSupported(t *testing.T) {
	outcome := IfSupported(func() error {
		return fmt.Errorf("netlink: %w", unix.EOPNOTSUPP)
	})
	reason, skipped := outcome.Skipped()
	if !skipped {
		t.Fatalf("expected skip outcome, got err %v", outcome.Err())
	}
	if reason != "feature not supported by platform" {
		t.Errorf("unexpected skip reason %q", reason)
	}
}

func TestIfSupported_NoEntry(t *testing.T) {
	outcome := IfSupported(func() error {
		return fmt.Errorf("netlink: %w", unix.ENOENT)
	})
	if _, skipped := outcome.Skipped(); !skipped {
		t.Fatalf("expected skip outcome for ENOENT, got err %v", outcome.Err())
	}
}

func TestIfSupported_PermissionDenied(t *testing.T) {
	cause := fmt.Errorf("netlink: %w", unix.EPERM)
	outcome := IfSupported(func() error { return cause })
	if _, skipped := outcome.Skipped(); skipped {
		t.Fatal("expected failure outcome for EPERM, got skip")
	}
	if !errors.Is(outcome.Err(), unix.EPERM) {
		t.Fatalf("expected EPERM propagated unchanged, got %v", outcome.Err())
	}
}

func TestIfSupported_SkipReason(t *testing.T) {
	outcome := IfSupported(func() error {
		return &notReadyError{reason: "database not ready"}
	})
	reason, skipped := outcome.Skipped()
	if !skipped {
		t.Fatalf("expected skip outcome, got err %v", outcome.Err())
	}
	if reason != "database not ready" {
		t.Errorf("expected collaborator reason carried through, got %q", reason)
	}
}

func TestIfImplemented_NotImplemented(t *testing.T) {
	outcome := IfImplemented(func() error {
		return fmt.Errorf("wrapped: %w", ErrNotImplemented)
	})
	reason, skipped := outcome.Skipped()
	if !skipped {
		t.Fatalf("expected skip outcome, got err %v", outcome.Err())
	}
	if reason != "feature not implemented" {
		t.Errorf("unexpected skip reason %q", reason)
	}
}

func TestIfImplemented_OtherErrorFails(t *testing.T) {
	cause := errors.New("malformed spec")
	outcome := IfImplemented(func() error { return cause })
	if _, skipped := outcome.Skipped(); skipped {
		t.Fatal("expected failure outcome, got skip")
	}
	if !errors.Is(outcome.Err(), cause) {
		t.Fatalf("expected cause propagated, got %v", outcome.Err())
	}
}

func TestOutcome_ApplySkip(t *testing.T) {
	// Run in a subtest so the skip does not abort this test.
	result := t.Run("skipped", func(t *testing.T) {
		Skip("not on this kernel").Apply(t)
		t.Error("unreachable after skip")
	})
	// A skipped subtest reports success, not failure.
	if !result {
		t.Fatal("expected skip outcome not to be reported as a failure")
	}
}
