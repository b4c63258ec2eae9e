// ============================================================================
// Wayfinder Search - Path Request
// ============================================================================
//
// Package: internal/search
// File: path.go
// Purpose: Point-to-point path request and its incremental A* search
//
// A path moves through created -> queued -> processing -> return_queue ->
// returned, strictly forward. The search itself is resumable: CalculateStep
// expands nodes until a deadline, so one request can span many worker time
// slices. Open-list entries use lazy deletion; a relaxed node is pushed
// again and stale pops are skipped because the node is already closed.
//
// ============================================================================

package search

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// deadlinePollInterval is how many node expansions happen between deadline
// checks; reading the clock per expansion would dominate small searches.
const deadlinePollInterval = 64

// heuristicScale converts world distance to the integer cost domain. Must
// match the graph edge-cost scale or the heuristic loses admissibility.
const heuristicScale = 1000

// NodeLocator resolves a world position to a graph node. Implemented by the
// engine; injected when a path is started.
type NodeLocator interface {
	GetNearest(pos types.Vector3, constraint graph.NNConstraint) graph.NearestInfo
}

// Callback fires when a path is returned (host thread) or immediately after
// the search completes (worker goroutine), depending on registration.
type Callback func(*Path)

// Path is one point-to-point search request.
type Path struct {
	id    types.PathID
	state atomic.Int32
	done  atomic.Bool

	errored atomic.Bool
	errMsg  string

	callback          Callback
	immediateCallback Callback

	// Start and End are the requested world positions.
	Start types.Vector3
	End   types.Vector3

	constraint graph.NNConstraint
	locator    NodeLocator
	embedding  *HeuristicEmbedding

	startNode graph.Node
	endNode   graph.Node

	handler *PathHandler

	searchedNodes int
	startedAt     time.Time
	duration      time.Duration

	nodePath   []types.NodeIndex
	vectorPath []types.Vector3

	refs atomic.Int32
}

// NewPath constructs a request from start to end. The callback fires exactly
// once on the host thread when the result is returned.
func NewPath(start, end types.Vector3, callback Callback) *Path {
	p := &Path{
		Start:      start,
		End:        end,
		callback:   callback,
		constraint: graph.NewDefaultConstraint(),
	}
	p.refs.Store(1)
	return p
}

// ID returns the rolling path id, 0 until the engine assigns one.
func (p *Path) ID() types.PathID { return p.id }

// SetID assigns the rolling id. Engine only, before queueing.
func (p *Path) SetID(id types.PathID) { p.id = id }

// SetConstraint overrides the nearest-node constraint used to resolve the
// endpoints. Must be called before the path is started.
func (p *Path) SetConstraint(c graph.NNConstraint) { p.constraint = c }

// SetLocator injects the engine's nearest-node resolver.
func (p *Path) SetLocator(l NodeLocator) { p.locator = l }

// SetEmbedding enables the pivot-distance heuristic for this search.
func (p *Path) SetEmbedding(e *HeuristicEmbedding) { p.embedding = e }

// SetImmediateCallback registers a callback fired on the worker goroutine the
// moment the search completes, before the result travels the return pipeline.
// Must be reentrant.
func (p *Path) SetImmediateCallback(cb Callback) { p.immediateCallback = cb }

// State returns the current lifecycle state.
func (p *Path) State() types.PathState {
	return types.PathState(p.state.Load())
}

// AdvanceState moves the path forward to s. Backward moves are ignored;
// transitions are strictly monotonic.
func (p *Path) AdvanceState(s types.PathState) {
	for {
		cur := p.state.Load()
		if int32(s) <= cur {
			return
		}
		if p.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// IsDone reports whether the search has finished, successfully or not.
func (p *Path) IsDone() bool { return p.done.Load() }

// Errored reports whether the search finished with an error.
func (p *Path) Errored() bool { return p.errored.Load() }

// ErrorMessage returns the failure description, empty on success. Valid once
// Errored reports true.
func (p *Path) ErrorMessage() string { return p.errMsg }

// FailWithError finishes the search with an error description.
func (p *Path) FailWithError(format string, args ...interface{}) {
	p.errMsg = fmt.Sprintf(format, args...)
	p.errored.Store(true)
	p.done.Store(true)
}

// Duration returns how long the search ran on its worker.
func (p *Path) Duration() time.Duration { return p.duration }

// SearchedNodes returns the number of nodes expanded.
func (p *Path) SearchedNodes() int { return p.searchedNodes }

// NodePath returns the resolved node handles, start to end.
func (p *Path) NodePath() []types.NodeIndex { return p.nodePath }

// VectorPath returns the resolved world positions, start to end.
func (p *Path) VectorPath() []types.Vector3 { return p.vectorPath }

// Claim increments the reference count.
func (p *Path) Claim() { p.refs.Add(1) }

// Release decrements the reference count and returns the remainder.
func (p *Path) Release() int32 { return p.refs.Add(-1) }

// ============================================================================
// Search lifecycle (worker side)
// ============================================================================

// PrepareBase attaches the worker's scratch table and starts the clock.
func (p *Path) PrepareBase(h *PathHandler) {
	p.handler = h
	p.startedAt = time.Now()
}

// Prepare resolves the endpoints to graph nodes. A failure here finishes the
// path immediately; Initialize is skipped for an already-done path.
func (p *Path) Prepare() {
	if p.locator == nil {
		p.FailWithError("path has no node locator; was it started through the engine?")
		return
	}
	start := p.locator.GetNearest(p.Start, p.constraint)
	if start.ConstrainedNode == nil {
		p.FailWithError("no suitable node near start %v", p.Start)
		return
	}
	end := p.locator.GetNearest(p.End, p.constraint)
	if end.ConstrainedNode == nil {
		p.FailWithError("no suitable node near end %v", p.End)
		return
	}
	p.startNode = start.ConstrainedNode
	p.endNode = end.ConstrainedNode

	sa, ea := p.startNode.Area(), p.endNode.Area()
	if sa != 0 && ea != 0 && sa != ea {
		p.FailWithError("start area %d and end area %d are not connected", sa, ea)
	}
}

// Initialize seeds the open list with the start node.
func (p *Path) Initialize() {
	if p.IsDone() {
		return
	}
	if p.startNode.Index() == p.endNode.Index() {
		p.nodePath = []types.NodeIndex{p.startNode.Index()}
		p.vectorPath = []types.Vector3{p.startNode.Position()}
		p.done.Store(true)
		return
	}
	p.handler.open.Reset()
	pn, _ := p.handler.Touch(p.startNode.Index(), p.id)
	pn.Ref = p.startNode
	pn.G = 0
	pn.H = p.heuristic(p.startNode)
	p.handler.open.PushNode(p.startNode.Index(), pn.F())
}

// CalculateStep expands open-list nodes until the search completes or the
// deadline passes. Callers re-invoke it on the next time slice.
func (p *Path) CalculateStep(deadline time.Time) {
	if p.IsDone() {
		return
	}
	endIdx := p.endNode.Index()
	sincePoll := 0

	for {
		idx, _, ok := p.handler.open.PopNode()
		if !ok {
			p.FailWithError("open list exhausted; no route from %v to %v", p.Start, p.End)
			return
		}
		cur := p.handler.Node(idx)
		if cur.PathID != p.id || cur.Closed {
			continue
		}
		cur.Closed = true
		p.searchedNodes++

		if idx == endIdx {
			p.trace(idx)
			p.done.Store(true)
			return
		}

		curG := cur.G
		cur.Ref.ForEachConnection(func(other graph.Node, cost uint32) bool {
			oIdx := other.Index()
			on, fresh := p.handler.Touch(oIdx, p.id)
			g := curG + cost
			if fresh {
				on.Ref = other
				on.Parent = idx
				on.G = g
				on.H = p.heuristic(other)
				p.handler.open.PushNode(oIdx, on.F())
			} else if !on.Closed && g < on.G {
				on.Parent = idx
				on.G = g
				p.handler.open.PushNode(oIdx, on.F())
			}
			return true
		})

		sincePoll++
		if sincePoll >= deadlinePollInterval {
			sincePoll = 0
			if time.Now().After(deadline) {
				return
			}
		}
	}
}

// Cleanup releases per-search references once the result is queued for
// return.
func (p *Path) Cleanup() {
	p.duration = time.Since(p.startedAt)
	p.handler = nil
}

// ReturnPath fires the caller's callback. Host thread only, exactly once.
func (p *Path) ReturnPath() {
	p.AdvanceState(types.PathReturned)
	if p.callback != nil {
		p.callback(p)
	}
}

// InvokeImmediateCallback fires the worker-side callback if registered.
func (p *Path) InvokeImmediateCallback() {
	if p.immediateCallback != nil {
		p.immediateCallback(p)
	}
}

func (p *Path) heuristic(n graph.Node) uint32 {
	if p.embedding != nil {
		if h, ok := p.embedding.Heuristic(n.Index(), p.endNode.Index()); ok {
			return h
		}
	}
	return uint32(n.Position().DistanceTo(p.endNode.Position()) * heuristicScale)
}

func (p *Path) trace(endIdx types.NodeIndex) {
	var rev []types.NodeIndex
	for idx := endIdx; idx != types.InvalidNodeIndex; {
		rev = append(rev, idx)
		if idx == p.startNode.Index() {
			break
		}
		idx = p.handler.Node(idx).Parent
	}
	p.nodePath = make([]types.NodeIndex, 0, len(rev))
	p.vectorPath = make([]types.Vector3, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		idx := rev[i]
		p.nodePath = append(p.nodePath, idx)
		p.vectorPath = append(p.vectorPath, p.handler.Node(idx).Ref.Position())
	}
}
