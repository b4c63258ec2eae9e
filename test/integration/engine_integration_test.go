package integration

// ============================================================================
// Engine Integration Test File
// Purpose: Cross-package scenarios - request ordering, path-id wraparound,
//          sustained load with interleaved graph updates, area split/heal,
//          flush idempotence, scan hook order, immediate callback
// ============================================================================

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/engine"
	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/internal/search"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorld(t *testing.T, workers, size int) (*engine.Engine, *graph.GridGraph) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.WorkerCount = workers
	cfg.BatchGraphUpdates = false
	e := engine.New(cfg)
	t.Cleanup(e.Destroy)

	g := graph.NewGridGraph(e.NodeAllocator(), size, size, 1.0, types.Vector3{}, nil)
	require.NoError(t, e.AddGraph(g))
	require.NoError(t, e.Scan())
	return e, g
}

// TestRequestOrdering verifies FIFO with one slot of front-push priority:
// enqueue P1, P2, P3 (front), P4 -> processing order P3, P1, P2, P4.
func TestRequestOrdering(t *testing.T) {
	e, _ := newWorld(t, 0, 4)

	var order []string
	mk := func(label string) *search.Path {
		return search.NewPath(types.Vector3{X: 0.5, Z: 0.5}, types.Vector3{X: 0.5, Z: 0.5}, func(*search.Path) {
			order = append(order, label)
		})
	}

	p1, p2, p3, p4 := mk("P1"), mk("P2"), mk("P3"), mk("P4")
	require.NoError(t, e.StartPath(p1, false))
	require.NoError(t, e.StartPath(p2, false))
	require.NoError(t, e.StartPath(p3, true))
	require.NoError(t, e.StartPath(p4, false))

	deadline := time.Now().Add(5 * time.Second)
	for len(order) < 4 {
		require.True(t, time.Now().Before(deadline))
		e.Tick()
	}
	assert.Equal(t, []string{"P3", "P1", "P2", "P4"}, order)
}

// TestPathIDWraparound verifies the 16-bit id space wraps 65535 -> 1,
// never issues 0, and fires the one-shot overflow hook exactly once.
func TestPathIDWraparound(t *testing.T) {
	if testing.Short() {
		t.Skip("drives 65k+ requests")
	}
	e, _ := newWorld(t, 0, 4)

	var overflows atomic.Int32
	e.On65KOverflow(func() { overflows.Add(1) })

	pos := types.Vector3{X: 0.5, Z: 0.5}
	const total = 1<<16 + 64

	var firstAfterWrap types.PathID
	for i := 0; i < total; i++ {
		p := search.NewPath(pos, pos, nil)
		require.NoError(t, e.StartPath(p, false))
		require.NotEqual(t, types.PathID(0), p.ID(), "sentinel id issued at request %d", i)
		if i == 1<<16-1 && firstAfterWrap == 0 {
			firstAfterWrap = p.ID()
		}
		require.NoError(t, e.WaitForPath(p))
	}

	assert.Equal(t, int32(1), overflows.Load(), "one-shot hook fires once per registration")
	assert.Equal(t, types.PathID(1), firstAfterWrap, "the id space restarts at 1")
}

// TestSustainedLoadWithUpdates verifies every callback fires exactly once
// while graph updates and flood fills interleave with searches.
func TestSustainedLoadWithUpdates(t *testing.T) {
	e, _ := newWorld(t, 4, 48)

	const total = 200
	var fired atomic.Int32
	var mu sync.Mutex
	seen := make(map[types.PathID]int)

	for i := 0; i < total; i++ {
		x := float64(i%48) + 0.5
		p := search.NewPath(types.Vector3{X: x, Z: 0.5}, types.Vector3{X: 0.5, Z: 47.5}, func(q *search.Path) {
			fired.Add(1)
			mu.Lock()
			seen[q.ID()]++
			mu.Unlock()
		})
		require.NoError(t, e.StartPath(p, i%7 == 0))

		if i%25 == 0 {
			e.UpdateGraphs(graph.NewUpdate(types.Bounds{
				Min: types.Vector3{X: 20, Y: -1, Z: 20},
				Max: types.Vector3{X: 24, Y: 1, Z: 24},
			}).WithPenaltyDelta(int32(i%3)*100), 0)
		}
		e.Tick()
	}

	deadline := time.Now().Add(20 * time.Second)
	for fired.Load() < total {
		require.True(t, time.Now().Before(deadline), "only %d/%d callbacks fired", fired.Load(), total)
		e.Tick()
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, total, "path ids must be unique among in-flight requests")
	for id, n := range seen {
		assert.Equal(t, 1, n, "callback fired %d times for path %d", n, id)
	}
}

// TestFloodFillSplitsAndHeals verifies area partitioning reacts to updates:
// a wall splits the world, healing it rejoins the areas.
func TestFloodFillSplitsAndHeals(t *testing.T) {
	e, g := newWorld(t, 1, 16)

	wall := types.Bounds{
		Min: types.Vector3{X: 8, Y: -1, Z: 0},
		Max: types.Vector3{X: 9, Y: 1, Z: 16},
	}
	e.UpdateGraphs(graph.NewUpdate(wall).WithWalkable(false), 0)
	e.FlushGraphUpdates()

	left := g.NodeAtCell(0, 0).Area()
	right := g.NodeAtCell(15, 0).Area()
	require.NotZero(t, left)
	require.NotZero(t, right)
	assert.NotEqual(t, left, right, "the wall must split the areas")

	p := search.NewPath(types.Vector3{X: 0.5, Z: 0.5}, types.Vector3{X: 15.5, Z: 0.5}, nil)
	require.NoError(t, e.StartPath(p, false))
	require.NoError(t, e.WaitForPath(p))
	assert.True(t, p.Errored(), "no route while split")

	e.UpdateGraphs(graph.NewUpdate(wall).WithWalkable(true), 0)
	e.FlushGraphUpdates()

	assert.Equal(t, g.NodeAtCell(0, 0).Area(), g.NodeAtCell(15, 0).Area(), "healed world is one area")

	p = search.NewPath(types.Vector3{X: 0.5, Z: 0.5}, types.Vector3{X: 15.5, Z: 0.5}, nil)
	require.NoError(t, e.StartPath(p, false))
	require.NoError(t, e.WaitForPath(p))
	assert.False(t, p.Errored(), p.ErrorMessage())
}

// TestDoubleFlushIsNoOp verifies a second flush with nothing enqueued does
// no work.
func TestDoubleFlushIsNoOp(t *testing.T) {
	e, _ := newWorld(t, 1, 8)

	updates := 0
	e.OnGraphsUpdated(func() { updates++ })

	e.UpdateGraphs(graph.NewUpdate(types.Bounds{
		Min: types.Vector3{X: 0, Y: -1, Z: 0},
		Max: types.Vector3{X: 2, Y: 1, Z: 2},
	}).WithPenaltyDelta(10), 0)
	e.FlushGraphUpdates()
	assert.Equal(t, 1, updates)

	e.FlushGraphUpdates()
	assert.Equal(t, 1, updates, "empty flush must not re-fire the hook")
}

// TestHooksObserveScan verifies the scan hook ordering.
func TestHooksObserveScan(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.WorkerCount = 1
	e := engine.New(cfg)
	t.Cleanup(e.Destroy)

	var order []string
	e.OnPreScan(func() { order = append(order, "pre") })
	e.OnGraphPreScan(func(graph.Graph) { order = append(order, "graph-pre") })
	e.OnGraphPostScan(func(graph.Graph) { order = append(order, "graph-post") })
	e.OnPostScan(func() { order = append(order, "post") })
	e.OnLatePostScan(func() { order = append(order, "late") })

	g := graph.NewGridGraph(e.NodeAllocator(), 4, 4, 1.0, types.Vector3{}, nil)
	require.NoError(t, e.AddGraph(g))
	require.NoError(t, e.Scan())

	assert.Equal(t, []string{"pre", "graph-pre", "graph-post", "post", "late"}, order)
}

// TestImmediateCallbackRunsOnWorker verifies the worker-side callback fires
// before the host-side return callback.
func TestImmediateCallbackRunsOnWorker(t *testing.T) {
	e, _ := newWorld(t, 1, 8)

	var sequence []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		sequence = append(sequence, s)
		mu.Unlock()
	}

	p := search.NewPath(types.Vector3{X: 0.5, Z: 0.5}, types.Vector3{X: 7.5, Z: 7.5}, func(*search.Path) {
		note("returned")
	})
	p.SetImmediateCallback(func(*search.Path) { note("immediate") })

	require.NoError(t, e.StartPath(p, false))
	require.NoError(t, e.WaitForPath(p))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"immediate", "returned"}, sequence)
}
