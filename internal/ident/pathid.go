// ============================================================================
// Wayfinder Identifier Allocation - Path ID Generator
// ============================================================================
//
// Package: internal/ident
// File: pathid.go
// Purpose: Rolling 16-bit path identifier with an overflow callback
//
// Path ids are stamped on per-worker node state as the "visited this search"
// marker; 16 bits keeps that state compact. When the counter wraps, the
// overflow callback fires once and is cleared. The subscriber is responsible
// for scheduling a reset of every node's last-seen path id before reuse can
// alias a stale visit, and for re-registering if it wants the next wrap.
//
// Main-thread-only, like the node index allocator.
//
// ============================================================================

package ident

import "github.com/NeonPandaSp/wayfinder/pkg/types"

// PathIDGenerator issues path ids 1..65535, skipping the 0 sentinel.
type PathIDGenerator struct {
	next       types.PathID
	onOverflow func()
}

// NewPathIDGenerator constructs a generator whose first id is 1.
func NewPathIDGenerator() *PathIDGenerator {
	return &PathIDGenerator{next: 1}
}

// SetOverflowCallback registers the function fired when the id space wraps.
// The callback is cleared after it fires.
func (g *PathIDGenerator) SetOverflowCallback(fn func()) {
	g.onOverflow = fn
}

// Next returns a fresh path id. On wrap the id space restarts at 1 and the
// overflow callback, if any, fires exactly once.
func (g *PathIDGenerator) Next() types.PathID {
	if g.next == 0 {
		g.next = 1
		if cb := g.onOverflow; cb != nil {
			g.onOverflow = nil
			cb()
		}
	}
	id := g.next
	g.next++
	return id
}
