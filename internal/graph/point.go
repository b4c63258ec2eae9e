// ============================================================================
// Wayfinder Graph Model - Point Graph
// ============================================================================
//
// Package: internal/graph
// File: point.go
// Purpose: Explicit point-set graph with a kd-tree nearest-node index
//
// Points within connectRadius of each other are linked during scan. The
// nearest query runs against a kd-tree rebuilt by Scan and UpdateArea; the
// rebuild is the expensive half of an update, which is why this graph asks
// for the async updater with a host-thread init.
//
// ============================================================================

package graph

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/NeonPandaSp/wayfinder/internal/ident"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// PointNode is one explicit point.
type PointNode struct {
	index    types.NodeIndex
	pos      types.Vector3
	walkable bool
	area     uint32
	penalty  uint32
	g        *PointGraph
	conns    []pointConn
}

type pointConn struct {
	to   *PointNode
	cost uint32
}

func (n *PointNode) Index() types.NodeIndex  { return n.index }
func (n *PointNode) Position() types.Vector3 { return n.pos }
func (n *PointNode) Walkable() bool          { return n.walkable }
func (n *PointNode) Area() uint32            { return n.area }
func (n *PointNode) SetArea(area uint32)     { n.area = area }
func (n *PointNode) Penalty() uint32         { return n.penalty }
func (n *PointNode) GraphIndex() uint8       { return n.g.index }

// ForEachConnection visits the scan-time links whose endpoints are walkable.
func (n *PointNode) ForEachConnection(fn func(other Node, cost uint32) bool) {
	for _, c := range n.conns {
		if !c.to.walkable {
			continue
		}
		if !fn(c.to, c.cost+c.to.penalty) {
			return
		}
	}
}

// ============================================================================
// kd-tree plumbing (gonum spatial/kdtree)
// ============================================================================

type nodePoint struct{ n *PointNode }

// Compare implements kdtree.Comparable.
func (p nodePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(nodePoint)
	switch d {
	case 0:
		return p.n.pos.X - q.n.pos.X
	case 1:
		return p.n.pos.Y - q.n.pos.Y
	default:
		return p.n.pos.Z - q.n.pos.Z
	}
}

// Dims implements kdtree.Comparable.
func (p nodePoint) Dims() int { return 3 }

// Distance implements kdtree.Comparable with squared euclidean distance.
func (p nodePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(nodePoint)
	return p.n.pos.Sub(q.n.pos).LengthSq()
}

type nodePoints []nodePoint

func (p nodePoints) Index(i int) kdtree.Comparable { return p[i] }
func (p nodePoints) Len() int                      { return len(p) }
func (p nodePoints) Pivot(d kdtree.Dim) int {
	return nodePlane{points: p, Dim: d}.Pivot()
}
func (p nodePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type nodePlane struct {
	kdtree.Dim
	points nodePoints
}

func (p nodePlane) Len() int { return len(p.points) }
func (p nodePlane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], p.Dim) < 0
}
func (p nodePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p nodePlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p nodePlane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// ============================================================================
// Graph implementation
// ============================================================================

// PointGraph is an explicit point set scanned into nodes and linked by
// proximity.
type PointGraph struct {
	alloc         *ident.NodeIndexAllocator
	index         uint8
	positions     []types.Vector3
	connectRadius float64
	nodes         []*PointNode
	tree          *kdtree.Tree
}

// NewPointGraph constructs an unscanned point graph.
func NewPointGraph(alloc *ident.NodeIndexAllocator, positions []types.Vector3, connectRadius float64) *PointGraph {
	return &PointGraph{
		alloc:         alloc,
		positions:     positions,
		connectRadius: connectRadius,
	}
}

func (g *PointGraph) Index() uint8       { return g.index }
func (g *PointGraph) SetIndex(idx uint8) { g.index = idx }
func (g *PointGraph) NodeCount() int     { return len(g.nodes) }

// Scan rebuilds nodes, proximity links and the kd-tree.
func (g *PointGraph) Scan(progress func(float64)) error {
	for _, n := range g.nodes {
		g.alloc.Release(n.index)
	}
	g.nodes = make([]*PointNode, len(g.positions))
	for i, pos := range g.positions {
		g.nodes[i] = &PointNode{
			index:    g.alloc.Allocate(),
			pos:      pos,
			walkable: true,
			g:        g,
		}
		if progress != nil {
			progress(0.5 * float64(i+1) / float64(len(g.positions)))
		}
	}
	g.connect()
	g.rebuildTree()
	if progress != nil {
		progress(1)
	}
	return nil
}

func (g *PointGraph) connect() {
	rSq := g.connectRadius * g.connectRadius
	for _, n := range g.nodes {
		n.conns = n.conns[:0]
	}
	for i, a := range g.nodes {
		for _, b := range g.nodes[i+1:] {
			dSq := a.pos.Sub(b.pos).LengthSq()
			if dSq > rSq {
				continue
			}
			cost := uint32(math.Sqrt(dSq) * costScale)
			a.conns = append(a.conns, pointConn{to: b, cost: cost})
			b.conns = append(b.conns, pointConn{to: a, cost: cost})
		}
	}
}

func (g *PointGraph) rebuildTree() {
	pts := make(nodePoints, 0, len(g.nodes))
	for _, n := range g.nodes {
		pts = append(pts, nodePoint{n: n})
	}
	g.tree = kdtree.New(pts, false)
}

// GetNodes visits every node in scan order.
func (g *PointGraph) GetNodes(visitor func(Node) bool) {
	for _, n := range g.nodes {
		if !visitor(n) {
			return
		}
	}
}

// GetNearest resolves the kd-tree nearest point.
func (g *PointGraph) GetNearest(pos types.Vector3, constraint NNConstraint) NearestInfo {
	if g.tree == nil || len(g.nodes) == 0 {
		return NearestInfo{}
	}
	query := nodePoint{n: &PointNode{pos: pos}}
	got, _ := g.tree.Nearest(query)
	n := got.(nodePoint).n
	info := NearestInfo{Node: n, ClampedPosition: n.pos}
	if constraint == nil || constraint.Suitable(n) {
		info.ConstrainedNode = n
		info.ConstrainedPosition = n.pos
	}
	return info
}

// GetNearestForce scans every node for the closest constraint-satisfying one.
func (g *PointGraph) GetNearestForce(pos types.Vector3, constraint NNConstraint) NearestInfo {
	info := g.GetNearest(pos, constraint)
	if info.Node == nil {
		return info
	}
	var best *PointNode
	bestDist := math.Inf(1)
	for _, n := range g.nodes {
		if constraint != nil && !constraint.Suitable(n) {
			continue
		}
		if d := n.pos.Sub(pos).LengthSq(); d < bestDist {
			bestDist = d
			best = n
		}
	}
	if best != nil {
		info.ConstrainedNode = best
		info.ConstrainedPosition = best.pos
	}
	return info
}

// ThreadingClass asks for the async updater with a host-thread init: the
// node mutation half is cheap, the kd-tree rebuild is not.
func (g *PointGraph) ThreadingClass(u *UpdateObject) types.ThreadingClass {
	if u.ThreadingHint != nil {
		return *u.ThreadingHint
	}
	return types.UpdateSeparateAndMainInit
}

// UpdateAreaInit applies node mutations on the host thread.
func (g *PointGraph) UpdateAreaInit(u *UpdateObject) error {
	for _, n := range g.nodes {
		if !u.Bounds.Contains(n.pos) {
			continue
		}
		if u.SetWalkable != nil {
			n.walkable = *u.SetWalkable
			if !n.walkable {
				n.area = 0
			}
		}
		if u.PenaltyDelta != 0 {
			p := int64(n.penalty) + int64(u.PenaltyDelta)
			if p < 0 {
				p = 0
			}
			n.penalty = uint32(p)
		}
	}
	return nil
}

// UpdateArea rebuilds the kd-tree; runs off the host thread while workers
// are parked.
func (g *PointGraph) UpdateArea(u *UpdateObject) error {
	g.rebuildTree()
	return nil
}
