// ============================================================================
// Wayfinder Search - Heuristic Embedding
// ============================================================================
//
// Package: internal/search
// File: embedding.go
// Purpose: Pivot-distance lower bound that tightens the A* heuristic
//
// A handful of pivot nodes get exact shortest-path costs to every node.
// For any pair (a, b), |d(pivot, a) - d(pivot, b)| is a valid lower bound on
// d(a, b) by the triangle inequality; the embedding takes the max over
// pivots. The tables are recomputed inside the blocked window whenever the
// dirty flag is set (graph costs changed), never concurrently with readers.
//
// ============================================================================

package search

import (
	"math"
	"sync/atomic"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// unreachableCost marks a node a pivot cannot reach.
const unreachableCost = math.MaxUint32

// HeuristicEmbedding holds per-pivot shortest-path cost tables.
type HeuristicEmbedding struct {
	pivotCount int
	dirty      atomic.Bool
	dist       [][]uint32
}

// NewHeuristicEmbedding constructs an embedding with the given pivot budget.
// It starts dirty; nothing is usable until the first Recalculate.
func NewHeuristicEmbedding(pivotCount int) *HeuristicEmbedding {
	e := &HeuristicEmbedding{pivotCount: pivotCount}
	e.dirty.Store(true)
	return e
}

// MarkDirty schedules a recompute at the next blocked window.
func (e *HeuristicEmbedding) MarkDirty() { e.dirty.Store(true) }

// Dirty reports whether a recompute is pending.
func (e *HeuristicEmbedding) Dirty() bool { return e.dirty.Load() }

// Recalculate rebuilds every pivot table. Blocked-window only. indexCap is
// the node index allocator's capacity.
func (e *HeuristicEmbedding) Recalculate(graphs []graph.Graph, indexCap int) {
	pivots := e.pickPivots(graphs)
	e.dist = make([][]uint32, len(pivots))
	for i, pivot := range pivots {
		e.dist[i] = dijkstraFrom(pivot, indexCap)
	}
	e.dirty.Store(false)
}

// Heuristic returns the pivot lower bound between two nodes. The boolean is
// false when the embedding is dirty or no pivot table reaches both nodes.
func (e *HeuristicEmbedding) Heuristic(a, b types.NodeIndex) (uint32, bool) {
	if e.dirty.Load() || len(e.dist) == 0 {
		return 0, false
	}
	var best uint32
	found := false
	for _, table := range e.dist {
		if int(a) >= len(table) || int(b) >= len(table) {
			continue
		}
		da, db := table[a], table[b]
		if da == unreachableCost || db == unreachableCost {
			continue
		}
		found = true
		var d uint32
		if da > db {
			d = da - db
		} else {
			d = db - da
		}
		if d > best {
			best = d
		}
	}
	return best, found
}

// pickPivots spreads pivots across graphs: the first walkable node of each
// graph, then evenly strided walkable nodes until the budget is spent.
func (e *HeuristicEmbedding) pickPivots(graphs []graph.Graph) []graph.Node {
	var pivots []graph.Node
	for _, g := range graphs {
		if len(pivots) >= e.pivotCount {
			break
		}
		g.GetNodes(func(n graph.Node) bool {
			if n.Walkable() {
				pivots = append(pivots, n)
				return false
			}
			return true
		})
	}
	if len(pivots) >= e.pivotCount {
		return pivots
	}

	var walkable []graph.Node
	for _, g := range graphs {
		g.GetNodes(func(n graph.Node) bool {
			if n.Walkable() {
				walkable = append(walkable, n)
			}
			return true
		})
	}
	if len(walkable) == 0 {
		return pivots
	}
	stride := len(walkable)/(e.pivotCount-len(pivots)+1) + 1
	for i := stride; i < len(walkable) && len(pivots) < e.pivotCount; i += stride {
		pivots = append(pivots, walkable[i])
	}
	return pivots
}

// dijkstraFrom computes exact costs from one pivot to every reachable node.
func dijkstraFrom(pivot graph.Node, indexCap int) []uint32 {
	dist := make([]uint32, indexCap)
	for i := range dist {
		dist[i] = unreachableCost
	}
	settled := make([]bool, indexCap)
	refs := make([]graph.Node, indexCap)

	var open openList
	dist[pivot.Index()] = 0
	refs[pivot.Index()] = pivot
	open.PushNode(pivot.Index(), 0)

	for {
		idx, d, ok := open.PopNode()
		if !ok {
			break
		}
		if settled[idx] || d > dist[idx] {
			continue
		}
		settled[idx] = true
		refs[idx].ForEachConnection(func(other graph.Node, cost uint32) bool {
			oIdx := other.Index()
			if nd := dist[idx] + cost; nd < dist[oIdx] {
				dist[oIdx] = nd
				refs[oIdx] = other
				open.PushNode(oIdx, nd)
			}
			return true
		})
	}
	return dist
}
