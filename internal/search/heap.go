package search

import (
	"container/heap"

	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// heapItem is one open-list entry: a node handle with the F score it was
// pushed under. Entries are never updated in place; a relaxed node is pushed
// again and the stale entry discarded when popped.
type heapItem struct {
	node types.NodeIndex
	f    uint32
}

type itemHeap []heapItem

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].f < h[j].f }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// openList is a reusable min-heap keyed on F score.
type openList struct {
	items itemHeap
}

func (o *openList) Reset() {
	o.items = o.items[:0]
}

func (o *openList) Len() int {
	return len(o.items)
}

func (o *openList) PushNode(node types.NodeIndex, f uint32) {
	heap.Push(&o.items, heapItem{node: node, f: f})
}

func (o *openList) PopNode() (types.NodeIndex, uint32, bool) {
	if len(o.items) == 0 {
		return types.InvalidNodeIndex, 0, false
	}
	it := heap.Pop(&o.items).(heapItem)
	return it.node, it.f, true
}
