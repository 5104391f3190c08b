// Package ident generates process-unique names for ephemeral test
// resources: interface names, network namespace names, and session ids.
package ident

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/google/uuid"
)

// IfnamePrefix is the common prefix of all generated interface names.
// The purge command relies on it to recognize leaked fixture interfaces.
const IfnamePrefix = "nfx"

// salt distinguishes interface names across processes sharing a host;
// the counter distinguishes names within a process.
var (
	salt    = rand.Uint32() & 0xffff
	counter atomic.Uint32
)

// NewIfname returns a new interface name unique within this process.
// The result fits the kernel's IFNAMSIZ limit of 15 visible characters.
func NewIfname() string {
	n := counter.Add(1)
	return fmt.Sprintf("%s%04x%06x", IfnamePrefix, salt, n&0xffffff)
}

// NewNsname returns a new network namespace name.
func NewNsname() string {
	return uuid.New().String()
}

// NewUID returns an opaque unique session token.
func NewUID() string {
	return uuid.New().String()
}
