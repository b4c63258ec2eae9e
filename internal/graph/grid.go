// ============================================================================
// Wayfinder Graph Model - Grid Graph
// ============================================================================
//
// Package: internal/graph
// File: grid.go
// Purpose: Eight-connected lattice graph over a walkability sampler
//
// Cell (x, z) maps to world position center + ((x+0.5)*nodeSize, 0,
// (z+0.5)*nodeSize), the middle of the cell.
// Diagonal moves are allowed only when both orthogonal cells flanking the
// diagonal are walkable, so a search can never cut a corner.
//
// ============================================================================

package graph

import (
	"math"

	"github.com/NeonPandaSp/wayfinder/internal/ident"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// costScale converts world distance to integer traversal cost.
const costScale = 1000

// neighbourOffsets enumerates the 8-connected moves: orthogonal first,
// diagonals after.
var neighbourOffsets = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// GridNode is one lattice cell.
type GridNode struct {
	index    types.NodeIndex
	pos      types.Vector3
	walkable bool
	area     uint32
	penalty  uint32
	x, z     int
	g        *GridGraph
}

func (n *GridNode) Index() types.NodeIndex    { return n.index }
func (n *GridNode) Position() types.Vector3   { return n.pos }
func (n *GridNode) Walkable() bool            { return n.walkable }
func (n *GridNode) Area() uint32              { return n.area }
func (n *GridNode) SetArea(area uint32)       { n.area = area }
func (n *GridNode) Penalty() uint32           { return n.penalty }
func (n *GridNode) GraphIndex() uint8         { return n.g.index }

// ForEachConnection visits walkable neighbours with their traversal cost.
// Cost is the cell distance scaled by costScale plus the neighbour's penalty.
func (n *GridNode) ForEachConnection(fn func(other Node, cost uint32) bool) {
	for i, off := range neighbourOffsets {
		nx, nz := n.x+off[0], n.z+off[1]
		nb := n.g.nodeAt(nx, nz)
		if nb == nil || !nb.walkable {
			continue
		}
		if i >= 4 {
			// Diagonal: both flanking orthogonal cells must be walkable.
			a := n.g.nodeAt(n.x+off[0], n.z)
			b := n.g.nodeAt(n.x, n.z+off[1])
			if a == nil || !a.walkable || b == nil || !b.walkable {
				continue
			}
		}
		cost := uint32(float64(costScale)*cellDistance(i)*n.g.nodeSize) + nb.penalty
		if !fn(nb, cost) {
			return
		}
	}
}

func cellDistance(offsetIdx int) float64 {
	if offsetIdx < 4 {
		return 1
	}
	return math.Sqrt2
}

// GridGraph is a width x depth lattice scanned from a walkability sampler.
type GridGraph struct {
	alloc    *ident.NodeIndexAllocator
	index    uint8
	width    int
	depth    int
	nodeSize float64
	center   types.Vector3
	// sampler reports whether cell (x, z) is blocked at scan time.
	sampler func(x, z int) bool
	nodes   []*GridNode
}

// NewGridGraph constructs an unscanned grid. The sampler may be nil, in
// which case every cell scans walkable.
func NewGridGraph(alloc *ident.NodeIndexAllocator, width, depth int, nodeSize float64, center types.Vector3, obstacle func(x, z int) bool) *GridGraph {
	return &GridGraph{
		alloc:    alloc,
		width:    width,
		depth:    depth,
		nodeSize: nodeSize,
		center:   center,
		sampler:  obstacle,
	}
}

func (g *GridGraph) Index() uint8       { return g.index }
func (g *GridGraph) SetIndex(idx uint8) { g.index = idx }

// NodeCount returns the number of live nodes.
func (g *GridGraph) NodeCount() int { return len(g.nodes) }

// Width returns the lattice width in cells.
func (g *GridGraph) Width() int { return g.width }

// Depth returns the lattice depth in cells.
func (g *GridGraph) Depth() int { return g.depth }

func (g *GridGraph) nodeAt(x, z int) *GridNode {
	if x < 0 || x >= g.width || z < 0 || z >= g.depth {
		return nil
	}
	return g.nodes[z*g.width+x]
}

// NodeAtCell exposes cell lookup for tests and tooling.
func (g *GridGraph) NodeAtCell(x, z int) Node {
	n := g.nodeAt(x, z)
	if n == nil {
		return nil
	}
	return n
}

func (g *GridGraph) cellPosition(x, z int) types.Vector3 {
	return g.center.Add(types.Vector3{
		X: (float64(x) + 0.5) * g.nodeSize,
		Z: (float64(z) + 0.5) * g.nodeSize,
	})
}

// Scan rebuilds every cell. Old node indices return to the allocator before
// new ones are drawn, so a rescan reuses the same dense range.
func (g *GridGraph) Scan(progress func(float64)) error {
	for _, n := range g.nodes {
		g.alloc.Release(n.index)
	}
	g.nodes = make([]*GridNode, g.width*g.depth)

	for z := 0; z < g.depth; z++ {
		for x := 0; x < g.width; x++ {
			walkable := true
			if g.sampler != nil {
				walkable = !g.sampler(x, z)
			}
			g.nodes[z*g.width+x] = &GridNode{
				index:    g.alloc.Allocate(),
				pos:      g.cellPosition(x, z),
				walkable: walkable,
				x:        x,
				z:        z,
				g:        g,
			}
		}
		if progress != nil {
			progress(float64(z+1) / float64(g.depth))
		}
	}
	return nil
}

// GetNodes visits every node in cell order.
func (g *GridGraph) GetNodes(visitor func(Node) bool) {
	for _, n := range g.nodes {
		if !visitor(n) {
			return
		}
	}
}

// GetNearest clamps the query position onto the lattice and returns that
// cell's node. The constrained result is filled only when the cell itself
// satisfies the constraint; callers wanting a guaranteed hit use the forced
// variant.
func (g *GridGraph) GetNearest(pos types.Vector3, constraint NNConstraint) NearestInfo {
	if len(g.nodes) == 0 {
		return NearestInfo{}
	}
	x, z := g.clampToCell(pos)
	n := g.nodeAt(x, z)
	info := NearestInfo{Node: n, ClampedPosition: n.pos}
	if constraint == nil || constraint.Suitable(n) {
		info.ConstrainedNode = n
		info.ConstrainedPosition = n.pos
	}
	return info
}

// GetNearestForce searches outward ring by ring for the closest node that
// satisfies the constraint.
func (g *GridGraph) GetNearestForce(pos types.Vector3, constraint NNConstraint) NearestInfo {
	if len(g.nodes) == 0 {
		return NearestInfo{}
	}
	cx, cz := g.clampToCell(pos)
	center := g.nodeAt(cx, cz)
	info := NearestInfo{Node: center, ClampedPosition: center.pos}

	maxRing := g.width
	if g.depth > maxRing {
		maxRing = g.depth
	}
	var best *GridNode
	bestDist := math.Inf(1)
	for ring := 0; ring <= maxRing; ring++ {
		found := false
		g.forEachRingCell(cx, cz, ring, func(n *GridNode) {
			if constraint != nil && !constraint.Suitable(n) {
				return
			}
			if d := n.pos.Sub(pos).LengthSq(); d < bestDist {
				bestDist = d
				best = n
				found = true
			}
		})
		// One extra ring after the first hit: a node in the next ring can
		// still be metrically closer than a corner hit in this one.
		if best != nil && !found && ring > 0 {
			break
		}
	}
	if best != nil {
		info.ConstrainedNode = best
		info.ConstrainedPosition = best.pos
	}
	return info
}

func (g *GridGraph) forEachRingCell(cx, cz, ring int, fn func(*GridNode)) {
	if ring == 0 {
		if n := g.nodeAt(cx, cz); n != nil {
			fn(n)
		}
		return
	}
	for x := cx - ring; x <= cx+ring; x++ {
		if n := g.nodeAt(x, cz-ring); n != nil {
			fn(n)
		}
		if n := g.nodeAt(x, cz+ring); n != nil {
			fn(n)
		}
	}
	for z := cz - ring + 1; z <= cz+ring-1; z++ {
		if n := g.nodeAt(cx-ring, z); n != nil {
			fn(n)
		}
		if n := g.nodeAt(cx+ring, z); n != nil {
			fn(n)
		}
	}
}

func (g *GridGraph) clampToCell(pos types.Vector3) (int, int) {
	local := pos.Sub(g.center)
	x := int(math.Floor(local.X / g.nodeSize))
	z := int(math.Floor(local.Z / g.nodeSize))
	if x < 0 {
		x = 0
	}
	if x >= g.width {
		x = g.width - 1
	}
	if z < 0 {
		z = 0
	}
	if z >= g.depth {
		z = g.depth - 1
	}
	return x, z
}

// ThreadingClass reports where updates run. Grid updates touch the shared
// node slice directly, so they belong on the host thread unless the update
// carries an explicit hint.
func (g *GridGraph) ThreadingClass(u *UpdateObject) types.ThreadingClass {
	if u.ThreadingHint != nil {
		return *u.ThreadingHint
	}
	return types.UpdateMainThread
}

// UpdateAreaInit has no host-thread half for grids.
func (g *GridGraph) UpdateAreaInit(u *UpdateObject) error { return nil }

// UpdateArea applies walkability and penalty changes to every cell inside
// the update bounds.
func (g *GridGraph) UpdateArea(u *UpdateObject) error {
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
