//go:build !linux

package nlctl

// NewFactory returns an in-memory fake Factory on non-Linux systems,
// keeping the package usable for development and unit testing.
func NewFactory() Factory {
	return NewFakeFactory()
}
