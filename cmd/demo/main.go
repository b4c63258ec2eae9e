package main

// ============================================================================
// Wayfinder demo - programmatic usage sample
// ============================================================================
//
// Builds a small grid world with a wall, requests a path across it, applies
// a graph update that opens a corridor, and shows the rerouted result.
//
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/sourcegraph/conc"

	"github.com/NeonPandaSp/wayfinder/internal/engine"
	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/internal/search"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

func main() {
	cfg := engine.DefaultConfig()
	cfg.WorkerCount = 2
	cfg.BatchGraphUpdates = false
	e := engine.New(cfg)
	defer e.Destroy()

	// A 32x32 grid with a wall at x==16, gap at z==30.
	g := graph.NewGridGraph(e.NodeAllocator(), 32, 32, 1.0, types.Vector3{}, func(x, z int) bool {
		return x == 16 && z != 30
	})
	if err := e.AddGraph(g); err != nil {
		fail(err)
	}
	if err := e.Scan(); err != nil {
		fail(err)
	}

	run := func(label string) {
		p := search.NewPath(types.Vector3{X: 0.5, Z: 0.5}, types.Vector3{X: 31.5, Z: 0.5}, nil)
		if err := e.StartPath(p, false); err != nil {
			fail(err)
		}
		if err := e.WaitForPath(p); err != nil {
			fail(err)
		}
		if p.Errored() {
			fmt.Printf("%s: no path (%s)\n", label, p.ErrorMessage())
			return
		}
		fmt.Printf("%s: %d nodes, %d expanded, %s\n",
			label, len(p.NodePath()), p.SearchedNodes(), p.Duration())
	}

	run("through the far gap")

	// Open a corridor straight through the wall and reroute.
	e.UpdateGraphs(graph.NewUpdate(types.Bounds{
		Min: types.Vector3{X: 16, Y: -1, Z: 0},
		Max: types.Vector3{X: 17, Y: 1, Z: 2},
	}).WithWalkable(true), 0)
	e.FlushGraphUpdates()

	run("through the new corridor")

	// Fan out a batch of requests; results print from a consumer goroutine
	// while the host keeps ticking.
	results := make(chan *search.Path, 4)
	var wg conc.WaitGroup
	wg.Go(func() {
		i := 0
		for p := range results {
			fmt.Printf("batch result %d: errored=%v nodes=%d\n", i, p.Errored(), len(p.NodePath()))
			i++
		}
	})
	batch := make([]*search.Path, 0, 4)
	for i := 0; i < 4; i++ {
		z := float64(i * 8)
		p := search.NewPath(types.Vector3{X: 0.5, Z: 0.5}, types.Vector3{X: 31.5, Z: z + 0.5}, func(p *search.Path) {
			results <- p
		})
		if err := e.StartPath(p, false); err != nil {
			fail(err)
		}
		batch = append(batch, p)
	}
	for _, p := range batch {
		if err := e.WaitForPath(p); err != nil {
			fail(err)
		}
	}
	close(results)
	wg.Wait()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
	os.Exit(1)
}
