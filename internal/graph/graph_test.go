package graph

// ============================================================================
// Graph Model Test File
// Purpose: Verify grid scanning, connection rules, nearest queries and
//          bounds-targeted updates on both graph implementations
// ============================================================================

import (
	"testing"

	"github.com/NeonPandaSp/wayfinder/internal/ident"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scannedGrid(t *testing.T, w, d int, obstacle func(x, z int) bool) *GridGraph {
	t.Helper()
	g := NewGridGraph(ident.NewNodeIndexAllocator(), w, d, 1.0, types.Vector3{}, obstacle)
	require.NoError(t, g.Scan(nil))
	return g
}

// ============================================================================
// Grid Graph Tests
// ============================================================================

// TestGridScan verifies node count, dense indices and walkability sampling.
func TestGridScan(t *testing.T) {
	g := scannedGrid(t, 4, 3, func(x, z int) bool { return x == 1 && z == 1 })

	assert.Equal(t, 12, g.NodeCount())

	seen := make(map[types.NodeIndex]bool)
	g.GetNodes(func(n Node) bool {
		require.GreaterOrEqual(t, n.Index(), types.NodeIndex(1))
		require.False(t, seen[n.Index()], "duplicate node index")
		seen[n.Index()] = true
		return true
	})
	assert.Len(t, seen, 12)

	assert.False(t, g.NodeAtCell(1, 1).Walkable())
	assert.True(t, g.NodeAtCell(0, 0).Walkable())
}

// TestGridRescanReusesIndices verifies a rescan draws from the free-list
// instead of growing the index range.
func TestGridRescanReusesIndices(t *testing.T) {
	alloc := ident.NewNodeIndexAllocator()
	g := NewGridGraph(alloc, 3, 3, 1.0, types.Vector3{}, nil)
	require.NoError(t, g.Scan(nil))
	capAfterFirst := alloc.Cap()

	require.NoError(t, g.Scan(nil))
	assert.Equal(t, capAfterFirst, alloc.Cap())
}

// TestGridConnections verifies orthogonal cost, diagonal cost and the
// no-corner-cutting rule.
func TestGridConnections(t *testing.T) {
	g := scannedGrid(t, 3, 3, func(x, z int) bool { return x == 1 && z == 0 })

	// Center node: (1,0) is blocked, so the diagonals through it are gone too.
	center := g.NodeAtCell(1, 1)
	targets := make(map[types.NodeIndex]uint32)
	center.ForEachConnection(func(other Node, cost uint32) bool {
		targets[other.Index()] = cost
		return true
	})

	assert.NotContains(t, targets, g.NodeAtCell(1, 0).Index())
	assert.NotContains(t, targets, g.NodeAtCell(0, 0).Index(), "diagonal may not cut the blocked corner")
	assert.NotContains(t, targets, g.NodeAtCell(2, 0).Index(), "diagonal may not cut the blocked corner")

	assert.Equal(t, uint32(1000), targets[g.NodeAtCell(0, 1).Index()])
	assert.Equal(t, uint32(1414), targets[g.NodeAtCell(0, 2).Index()])
	assert.Len(t, targets, 5)
}

// TestGridGetNearest verifies clamping and constraint handling.
func TestGridGetNearest(t *testing.T) {
	g := scannedGrid(t, 4, 4, func(x, z int) bool { return x == 0 && z == 0 })

	// Far outside the lattice clamps to the nearest corner cell.
	info := g.GetNearest(types.Vector3{X: -100, Z: -100}, nil)
	require.NotNil(t, info.Node)
	assert.Equal(t, g.NodeAtCell(0, 0).Index(), info.Node.Index())

	// The corner is unwalkable, so a walkable-only constraint resolves no
	// constrained node on the cheap query...
	info = g.GetNearest(types.Vector3{X: -100, Z: -100}, NewDefaultConstraint())
	assert.Nil(t, info.ConstrainedNode)

	// ...while the forced query finds the closest walkable cell.
	info = g.GetNearestForce(types.Vector3{X: -100, Z: -100}, NewDefaultConstraint())
	require.NotNil(t, info.ConstrainedNode)
	assert.True(t, info.ConstrainedNode.Walkable())
	dist := info.ConstrainedPosition.DistanceTo(g.NodeAtCell(0, 0).Position())
	assert.InDelta(t, 1.0, dist, 0.001, "forced result should be an adjacent cell")
}

// TestGridUpdateArea verifies bounds-targeted walkability and penalty edits.
func TestGridUpdateArea(t *testing.T) {
	g := scannedGrid(t, 4, 4, nil)

	u := NewUpdate(types.Bounds{
		Min: types.Vector3{X: 0, Y: -1, Z: 0},
		Max: types.Vector3{X: 2, Y: 1, Z: 2},
	}).WithWalkable(false)
	require.True(t, u.RequiresFloodFill)
	require.NoError(t, g.UpdateArea(u))

	assert.False(t, g.NodeAtCell(0, 0).Walkable())
	assert.False(t, g.NodeAtCell(1, 1).Walkable())
	assert.Zero(t, g.NodeAtCell(1, 1).Area())
	assert.True(t, g.NodeAtCell(3, 3).Walkable())

	p := NewUpdate(types.Bounds{
		Min: types.Vector3{X: 3, Y: -1, Z: 3},
		Max: types.Vector3{X: 4, Y: 1, Z: 4},
	}).WithPenaltyDelta(500)
	require.False(t, p.RequiresFloodFill)
	require.NoError(t, g.UpdateArea(p))
	assert.Equal(t, uint32(500), g.NodeAtCell(3, 3).Penalty())
}

// ============================================================================
// Point Graph Tests
// ============================================================================

// TestPointGraphScanAndNearest verifies proximity linking and kd-tree
// nearest lookup.
func TestPointGraphScanAndNearest(t *testing.T) {
	positions := []types.Vector3{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 2, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
	}
	g := NewPointGraph(ident.NewNodeIndexAllocator(), positions, 1.5)
	require.NoError(t, g.Scan(nil))
	require.Equal(t, 4, g.NodeCount())

	// Chain 0-1-2 links; the far point stays isolated.
	var isolated Node
	g.GetNodes(func(n Node) bool {
		count := 0
		n.ForEachConnection(func(Node, uint32) bool { count++; return true })
		if n.Position().X == 10 {
			isolated = n
			assert.Zero(t, count)
		} else {
			assert.Greater(t, count, 0)
		}
		return true
	})
	require.NotNil(t, isolated)

	info := g.GetNearest(types.Vector3{X: 9, Y: 0, Z: 0}, nil)
	require.NotNil(t, info.Node)
	assert.Equal(t, isolated.Index(), info.Node.Index())

	info = g.GetNearest(types.Vector3{X: 0.4, Y: 0, Z: 0}, NewDefaultConstraint())
	require.NotNil(t, info.ConstrainedNode)
	assert.Equal(t, 0.0, info.ConstrainedNode.Position().X)
}

// TestPointGraphThreadingClass verifies the split-update classification and
// the hint override.
func TestPointGraphThreadingClass(t *testing.T) {
	g := NewPointGraph(ident.NewNodeIndexAllocator(), nil, 1)
	u := NewUpdate(types.Bounds{})
	assert.Equal(t, types.UpdateSeparateAndMainInit, g.ThreadingClass(u))

	u = u.WithThreadingHint(types.UpdateSeparateThread)
	assert.Equal(t, types.UpdateSeparateThread, g.ThreadingClass(u))
}
