// ============================================================================
// Wayfinder Engine - Nearest Node Resolution
// ============================================================================
//
// Package: internal/engine
// File: nearest.go
// Purpose: Multi-graph nearest-node query with constraint fallback
//
// Graphs are consulted in index order; ties on distance go to the earlier
// graph. With graph prioritization on, the scan stops at the first graph
// whose result lands within the priority limit, even if a later graph holds
// a closer node. When the cheap query misses the constraint, the winning
// graph gets one exhaustive retry. Results beyond the maximum nearest-node
// distance are rejected.
//
// Called from the host thread and from worker goroutines during path
// preparation; it only reads graph state, which is safe outside blocked
// windows by the quiescence contract.
//
// ============================================================================

package engine

import (
	"math"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// GetNearest resolves the node closest to pos across all graphs. A nil
// constraint means walkable nodes of any area.
func (e *Engine) GetNearest(pos types.Vector3, constraint graph.NNConstraint) graph.NearestInfo {
	if constraint == nil {
		constraint = graph.NewDefaultConstraint()
	}

	var (
		best      graph.NearestInfo
		bestGraph graph.Graph
		bestDist  = math.Inf(1)
	)
	for _, g := range e.graphs {
		info := g.GetNearest(pos, constraint)
		if info.Node == nil {
			continue
		}
		d := info.ClampedPosition.DistanceTo(pos)
		if d < bestDist {
			bestDist = d
			best = info
			bestGraph = g
		}
		if e.cfg.PrioritizeGraphs && d <= e.cfg.PrioritizeGraphsLimit {
			break
		}
	}
	if best.Node == nil {
		return best
	}

	if best.ConstrainedNode == nil {
		forced := bestGraph.GetNearestForce(pos, constraint)
		if forced.ConstrainedNode != nil {
			best.ConstrainedNode = forced.ConstrainedNode
			best.ConstrainedPosition = forced.ConstrainedPosition
		}
	}

	if max := e.cfg.MaxNearestNodeDistance; max > 0 {
		if best.ConstrainedNode != nil && best.ConstrainedPosition.DistanceTo(pos) > max {
			best.ConstrainedNode = nil
		}
		if bestDist > max {
			return graph.NearestInfo{}
		}
	}
	return best
}
