// ============================================================================
// Wayfinder Graph Model - Collaborator Contracts
// ============================================================================
//
// Package: internal/graph
// File: graph.go
// Purpose: Interfaces the engine uses to talk to navigation graphs, plus the
//          graph-update request object
//
// Threading contract:
//   Scan, UpdateAreaInit and node destruction run only while every search
//   worker is parked. UpdateArea may additionally run on the async updater,
//   still inside the blocked window. GetNearest and node reads run freely
//   from worker goroutines between blocked windows.
//
// ============================================================================

package graph

import (
	"github.com/google/uuid"

	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// Node is a single navigable position in a graph.
type Node interface {
	// Index returns the dense handle for this node, >= 1 while alive.
	Index() types.NodeIndex
	// Position returns the node's world position.
	Position() types.Vector3
	// Walkable reports whether searches may traverse this node.
	Walkable() bool
	// Area returns the connected-component id, 0 for unwalkable nodes.
	Area() uint32
	// SetArea assigns the connected-component id. Blocked-window only.
	SetArea(area uint32)
	// Penalty returns the additive traversal cost of this node.
	Penalty() uint32
	// GraphIndex identifies the owning graph within the engine.
	GraphIndex() uint8
	// ForEachConnection visits every neighbour with its traversal cost.
	// The visitor returns false to stop early.
	ForEachConnection(fn func(other Node, cost uint32) bool)
}

// NearestInfo is the result of a nearest-node query.
type NearestInfo struct {
	// Node is the closest node regardless of constraints; nil if the graph
	// holds no nodes.
	Node Node
	// ClampedPosition is the query position clamped onto the graph surface.
	ClampedPosition types.Vector3
	// ConstrainedNode is the closest node satisfying the constraint, when the
	// query resolved one; nil otherwise.
	ConstrainedNode Node
	// ConstrainedPosition is the clamped position of ConstrainedNode.
	ConstrainedPosition types.Vector3
}

// NNConstraint filters nearest-node results.
type NNConstraint interface {
	// Suitable reports whether the node may be returned to the caller.
	Suitable(n Node) bool
}

// DefaultConstraint is the stock constraint: optionally walkable-only and
// optionally pinned to one connected area.
type DefaultConstraint struct {
	// WalkableOnly rejects unwalkable nodes.
	WalkableOnly bool
	// Area pins results to one connected component; negative means any.
	Area int64
}

// NewDefaultConstraint returns the constraint used when a caller passes none:
// walkable nodes of any area.
func NewDefaultConstraint() *DefaultConstraint {
	return &DefaultConstraint{WalkableOnly: true, Area: -1}
}

// Suitable implements NNConstraint.
func (c *DefaultConstraint) Suitable(n Node) bool {
	if c.WalkableOnly && !n.Walkable() {
		return false
	}
	if c.Area >= 0 && int64(n.Area()) != c.Area {
		return false
	}
	return true
}

// Graph is a navigation graph the engine can search and mutate.
type Graph interface {
	// Index returns the graph's position in the engine's graph list.
	Index() uint8
	// SetIndex assigns the graph's position. Blocked-window only.
	SetIndex(idx uint8)
	// NodeCount returns the number of live nodes.
	NodeCount() int
	// Scan rebuilds the graph from its source data, reporting progress in
	// [0,1]. Existing node indices are released back to the allocator first.
	Scan(progress func(float64)) error
	// GetNodes visits every node; the visitor returns false to stop early.
	GetNodes(visitor func(Node) bool)
	// GetNearest resolves the node closest to pos. Cheap; may miss a
	// constraint-satisfying node that an exhaustive search would find.
	GetNearest(pos types.Vector3, constraint NNConstraint) NearestInfo
	// GetNearestForce is the exhaustive variant of GetNearest.
	GetNearestForce(pos types.Vector3, constraint NNConstraint) NearestInfo
	// ThreadingClass reports where the given update must execute.
	ThreadingClass(u *UpdateObject) types.ThreadingClass
	// UpdateAreaInit runs the host-thread half of an update.
	UpdateAreaInit(u *UpdateObject) error
	// UpdateArea runs the body of an update.
	UpdateArea(u *UpdateObject) error
}

// UpdateObject describes one graph mutation. It is immutable once handed to
// the engine; the scheduler consumes it exactly once.
type UpdateObject struct {
	// ID correlates the update through scheduler and updater logs.
	ID uuid.UUID
	// Bounds selects the affected region.
	Bounds types.Bounds
	// SetWalkable, when non-nil, overwrites walkability inside Bounds.
	SetWalkable *bool
	// PenaltyDelta is added to the penalty of every node inside Bounds.
	PenaltyDelta int32
	// RequiresFloodFill requests a connected-area recomputation after the
	// update applies. Updates that change walkability set this.
	RequiresFloodFill bool
	// ThreadingHint, when non-nil, overrides the graph's threading class.
	ThreadingHint *types.ThreadingClass
}

// NewUpdate constructs an update targeting the given bounds.
func NewUpdate(bounds types.Bounds) *UpdateObject {
	return &UpdateObject{ID: uuid.New(), Bounds: bounds}
}

// WithWalkable returns u with walkability forced to w inside the bounds.
// Walkability changes invalidate connected areas, so the flood-fill flag is
// set as well.
func (u *UpdateObject) WithWalkable(w bool) *UpdateObject {
	u.SetWalkable = &w
	u.RequiresFloodFill = true
	return u
}

// WithPenaltyDelta returns u with an additive penalty change.
func (u *UpdateObject) WithPenaltyDelta(d int32) *UpdateObject {
	u.PenaltyDelta = d
	return u
}

// WithThreadingHint returns u pinned to the given threading class.
func (u *UpdateObject) WithThreadingHint(tc types.ThreadingClass) *UpdateObject {
	u.ThreadingHint = &tc
	return u
}
