package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs hands out predictable identifiers for golden comparisons.
//
// The n-th call to Next returns "<prefix>-<n>" zero-padded to four digits,
// starting at 1. Real runs use UUIDv7 instead.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix becomes "test".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next identifier.
func (g *SequentialIDs) Next() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
