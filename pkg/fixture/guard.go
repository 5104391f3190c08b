package fixture

import (
	"errors"
	"testing"

	"github.com/easzlab/netfix/pkg/nlctl"
)

// ErrNotImplemented marks a capability that is absent from a collaborator
// surface. Operations guarded by IfImplemented turn it into a skip.
var ErrNotImplemented = errors.New("not implemented")

// skipReasoner is implemented by collaborator errors that should soft-skip
// a test, carrying the human-readable reason.
type skipReasoner interface {
	SkipReason() string
}

// Outcome is the result of a guarded operation: Ok, Skip with a reason,
// or Fail with an error.
type Outcome struct {
	skip   bool
	reason string
	err    error
}

// Ok returns a successful outcome.
func Ok() Outcome {
	return Outcome{}
}

// Skip returns a skip outcome with the given reason.
func Skip(reason string) Outcome {
	return Outcome{skip: true, reason: reason}
}

// Fail returns a failure outcome carrying err.
func Fail(err error) Outcome {
	return Outcome{err: err}
}

// Skipped reports whether the outcome is a skip, and the reason.
func (o Outcome) Skipped() (string, bool) {
	return o.reason, o.skip
}

// Err returns the failure error, nil for Ok and Skip outcomes.
func (o Outcome) Err() error {
	return o.err
}

// Apply bridges the outcome to the test framework: skips the test for a
// skip outcome, fails it for a failure, does nothing for Ok. Skip
// outcomes are never reported as failures.
func (o Outcome) Apply(t testing.TB) {
	t.Helper()
	if o.skip {
		t.Skip(o.reason)
	}
	if o.err != nil {
		t.Fatalf("guarded operation failed: %v", o.err)
	}
}

// IfImplemented runs fn and maps a missing-capability error to a skip
// outcome with reason "feature not implemented". Any other error fails.
func IfImplemented(fn func() error) Outcome {
	err := fn()
	switch {
	case err == nil:
		return Ok()
	case errors.Is(err, ErrNotImplemented) || nlctl.IsNotImplemented(err):
		return Skip("feature not implemented")
	default:
		return Fail(err)
	}
}

// IfSupported runs fn and maps platform-capability errors to skip
// outcomes: EOPNOTSUPP and ENOENT become "feature not supported by
// platform", and collaborator errors carrying a skip reason use that
// reason. Any other error fails.
func IfSupported(fn func() error) Outcome {
	err := fn()
	if err == nil {
		return Ok()
	}
	if nlctl.IsUnsupported(err) {
		return Skip("feature not supported by platform")
	}
	var sr skipReasoner
	if errors.As(err, &sr) {
		return Skip(sr.SkipReason())
	}
	return Fail(err)
}
