// ============================================================================
// Wayfinder Identifier Allocation - Node Index Allocator
// ============================================================================
//
// Package: internal/ident
// File: nodeindex.go
// Purpose: Monotonic allocator of dense integer node handles with a LIFO
//          free-list for reuse
//
// The allocator is not internally locked. Allocation and release happen only
// while every search worker is parked (scan and graph-update windows), so the
// quiescence protocol is the lock. An index is either held by exactly one
// live node or sitting in the free-list, never both.
//
// ============================================================================

package ident

import "github.com/NeonPandaSp/wayfinder/pkg/types"

// NodeIndexAllocator hands out dense node indices starting at 1.
// Index 0 is the reserved sentinel and is never issued.
type NodeIndexAllocator struct {
	next types.NodeIndex
	free []types.NodeIndex
}

// NewNodeIndexAllocator constructs an empty allocator.
func NewNodeIndexAllocator() *NodeIndexAllocator {
	return &NodeIndexAllocator{next: 1}
}

// Allocate returns the next node index, preferring reclaimed indices.
func (a *NodeIndexAllocator) Allocate() types.NodeIndex {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		return idx
	}
	idx := a.next
	a.next++
	return idx
}

// Release returns an index to the free-list for reuse. Releasing the
// sentinel is a no-op.
func (a *NodeIndexAllocator) Release(idx types.NodeIndex) {
	if idx == types.InvalidNodeIndex {
		return
	}
	a.free = append(a.free, idx)
}

// Cap returns one past the highest index ever issued. Per-worker node state
// tables are sized to Cap so any live index can address them.
func (a *NodeIndexAllocator) Cap() int {
	return int(a.next)
}

// FreeCount returns the number of indices waiting for reuse.
func (a *NodeIndexAllocator) FreeCount() int {
	return len(a.free)
}
