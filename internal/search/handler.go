// ============================================================================
// Wayfinder Search - Per-Worker Scratch State
// ============================================================================
//
// Package: internal/search
// File: handler.go
// Purpose: Per-worker node state table indexed by dense node index
//
// Each worker owns exactly one handler; a search never touches another
// worker's table. Entries carry the path id of the last search that touched
// them, so starting a new search costs nothing: an entry whose stamp differs
// from the running path id is stale by definition and is re-initialized on
// first touch. The table only ever grows, and only inside the blocked
// window, because growth must not race worker reads.
//
// ============================================================================

package search

import (
	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// PathNode is the transient per-search state of one graph node.
type PathNode struct {
	// PathID stamps the search that last touched this entry.
	PathID types.PathID
	// Closed marks the node expanded by the stamping search.
	Closed bool
	// Parent is the node this one was reached from.
	Parent types.NodeIndex
	// Ref resolves the index back to the live node for tracing.
	Ref graph.Node
	// G is the cost from the start node.
	G uint32
	// H is the heuristic estimate to the end node.
	H uint32
}

// F returns the total score used to order the open list.
func (n *PathNode) F() uint32 { return n.G + n.H }

// PathHandler is one worker's scratch memory plus its reusable open list.
type PathHandler struct {
	workerID int
	nodes    []PathNode
	open     openList
}

// NewPathHandler constructs a handler sized for the given node index range.
func NewPathHandler(workerID, capacity int) *PathHandler {
	if capacity < 1 {
		capacity = 1
	}
	return &PathHandler{
		workerID: workerID,
		nodes:    make([]PathNode, capacity),
	}
}

// WorkerID returns the owning worker's id.
func (h *PathHandler) WorkerID() int { return h.workerID }

// Cap returns the current table size.
func (h *PathHandler) Cap() int { return len(h.nodes) }

// EnsureCapacity grows the table so indices below n are addressable.
// Blocked-window only.
func (h *PathHandler) EnsureCapacity(n int) {
	if n <= len(h.nodes) {
		return
	}
	grown := make([]PathNode, n)
	copy(grown, h.nodes)
	h.nodes = grown
}

// Node returns the entry for the given index. The index must be below Cap.
func (h *PathHandler) Node(idx types.NodeIndex) *PathNode {
	return &h.nodes[idx]
}

// Touch returns the entry for idx, re-initializing it when the stamp does
// not match the running search. Reports whether the entry was fresh.
func (h *PathHandler) Touch(idx types.NodeIndex, id types.PathID) (*PathNode, bool) {
	n := &h.nodes[idx]
	if n.PathID != id {
		*n = PathNode{PathID: id}
		return n, true
	}
	return n, false
}

// ClearPathIDs zeroes every entry's stamp. Scheduled when the path id space
// wraps, so a recycled id can never alias a years-old visit.
func (h *PathHandler) ClearPathIDs() {
	for i := range h.nodes {
		h.nodes[i].PathID = 0
	}
}
