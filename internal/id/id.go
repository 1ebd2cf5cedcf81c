// Package id generates unique identifiers for pipelines, sessions, and
// workspaces.
package id

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	New() string
}

// UUID generates version-4 UUIDs via google/uuid.
type UUID struct{}

// New returns a freshly generated UUIDv4 string.
func (UUID) New() string {
	return uuid.New().String()
}

// Sequential is a deterministic Generator for tests: it produces
// zero-padded, monotonically increasing ids so assertions can reference
// exact values.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential returns a Sequential generator that prefixes every id with
// prefix (e.g. "pipeline-").
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next sequential id.
func (s *Sequential) New() string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s%04d", s.prefix, n)
}
