// ============================================================================
// Wayfinder Flood Filler - Connected Area Assignment
// ============================================================================
//
// Package: internal/floodfill
// File: floodfill.go
// Purpose: Assign connected-component identifiers to walkable nodes using an
//          explicit work stack
//
// Area ids are bit-packed in node state, so the id space is a hard budget.
// When it runs out, the most recently seen small component surrenders its id
// and is collapsed onto the reserved MaxAreaIndex value; reachability stays
// correct for every component of meaningful size. If no small component is
// available the counter is decremented and a warning surfaces, but the
// partition is still produced.
//
// Runs only inside the blocked window: it writes every node's area.
//
// ============================================================================

package floodfill

import (
	"log/slog"
	"runtime"

	"github.com/RoaringBitmap/roaring"
	"github.com/sourcegraph/conc/pool"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

var log = slog.Default()

// Options tunes one fill run.
type Options struct {
	// MinAreaSize is the component size below which an id may be reclaimed.
	MinAreaSize int
	// MaxAreaIndex is the reserved collapse id; distinct ids stop below it.
	MaxAreaIndex uint32
}

// DefaultOptions mirrors the engine defaults.
func DefaultOptions() Options {
	return Options{MinAreaSize: 10, MaxAreaIndex: types.MaxAreaIndex}
}

// Result reports what one fill run did.
type Result struct {
	// Components is the number of connected components discovered.
	Components int
	// Collapsed is the number of small components relabeled to MaxAreaIndex.
	Collapsed int
	// CollapsedNodes holds the node indices of every collapsed component.
	CollapsedNodes *roaring.Bitmap
	// Warned reports id exhaustion with no small component left to reclaim.
	Warned bool
}

type smallComponent struct {
	id    uint32
	nodes []graph.Node
}

// Run assigns areas across all graphs. Walkable nodes end with area > 0;
// unwalkable nodes end with area 0.
func Run(graphs []graph.Graph, opts Options) Result {
	zeroAreas(graphs)

	res := Result{CollapsedNodes: roaring.New()}
	var (
		area   uint32
		smalls []smallComponent
		stack  []graph.Node
	)

	for _, g := range graphs {
		g.GetNodes(func(n graph.Node) bool {
			if !n.Walkable() || n.Area() != 0 {
				return true
			}
			res.Components++
			area++

			id := area
			if area >= opts.MaxAreaIndex {
				if len(smalls) > 0 {
					// Reclaim the most recent small component's id and
					// collapse it onto the reserved value.
					s := smalls[len(smalls)-1]
					smalls = smalls[:len(smalls)-1]
					for _, sn := range s.nodes {
						sn.SetArea(opts.MaxAreaIndex)
						res.CollapsedNodes.Add(uint32(sn.Index()))
					}
					res.Collapsed++
					id = s.id
				} else {
					area--
					id = area
					if !res.Warned {
						res.Warned = true
						log.Warn("area id space exhausted; components will share ids",
							"max_area_index", opts.MaxAreaIndex)
					}
				}
			}

			comp := spread(n, id, &stack)
			if len(comp) < opts.MinAreaSize {
				smalls = append(smalls, smallComponent{id: id, nodes: comp})
			}
			return true
		})
	}
	return res
}

// zeroAreas clears every node's area, one graph per pool task.
func zeroAreas(graphs []graph.Graph) {
	if len(graphs) == 0 {
		return
	}
	p := pool.New().WithMaxGoroutines(min(len(graphs), runtime.NumCPU()))
	for _, g := range graphs {
		g := g
		p.Go(func() {
			g.GetNodes(func(n graph.Node) bool {
				n.SetArea(0)
				return true
			})
		})
	}
	p.Wait()
}

// spread floods one component from seed, returning its nodes.
func spread(seed graph.Node, id uint32, stack *[]graph.Node) []graph.Node {
	seed.SetArea(id)
	*stack = append((*stack)[:0], seed)
	comp := []graph.Node{seed}

	for len(*stack) > 0 {
		n := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		n.ForEachConnection(func(other graph.Node, _ uint32) bool {
			if other.Walkable() && other.Area() == 0 {
				other.SetArea(id)
				comp = append(comp, other)
				*stack = append(*stack, other)
			}
			return true
		})
	}
	return comp
}
