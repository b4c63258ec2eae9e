// ============================================================================
// Wayfinder Work Items - Deferred Host-Thread Executor
// ============================================================================
//
// Package: internal/workitems
// File: runner.go
// Purpose: Serialized executor of deferred operations that may only run
//          while every search worker is parked
//
// Items come in two shapes: a one-shot function, or a resumable pair whose
// init runs exactly once and whose step reports completion. Resumable steps
// may span many ticks; passing force demands completion, and a step that
// still reports incomplete under force is a logic error in the item.
//
// Items may enqueue further items while running. Re-entering Process from
// inside an item is forbidden and rejected.
//
// Completion order: when the queue empties, a pending connectivity flag runs
// the flood-fill callback, then a dirty heuristic flag runs the embedding
// callback. Both fire inside the same blocked window that ran the items.
//
// ============================================================================

package workitems

import (
	"log/slog"
	"sync"
)

var log = slog.Default()

// Item is one deferred operation.
type Item struct {
	// oneShot, when set, is the whole item.
	oneShot func()
	// init runs exactly once before the first step.
	init func()
	// step reports whether the item is complete. force demands completion.
	step func(force bool) bool

	initDone bool
}

// OneShot wraps a function as a complete-on-first-run item.
func OneShot(fn func()) Item {
	return Item{oneShot: fn}
}

// Resumable pairs an optional init with a step that may span ticks.
func Resumable(init func(), step func(force bool) bool) Item {
	return Item{init: init, step: step}
}

// run executes one slice of the item and reports completion.
func (it *Item) run(force bool) bool {
	if it.oneShot != nil {
		it.oneShot()
		return true
	}
	if !it.initDone {
		it.initDone = true
		if it.init != nil {
			it.init()
		}
	}
	if it.step == nil {
		return true
	}
	return it.step(force)
}

// Runner executes items in enqueue order on the host thread.
type Runner struct {
	mu    sync.Mutex
	queue []Item

	processing bool

	pendingFloodFill bool
	embeddingDirty   bool

	// OnFloodFill runs when a completed batch flagged connectivity changes.
	OnFloodFill func()
	// OnRecalculateEmbedding runs when a completed batch flagged cost
	// changes.
	OnRecalculateEmbedding func()
}

// NewRunner constructs an empty runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Add enqueues an item. Safe from any goroutine; execution still happens
// only on the host thread inside the blocked window.
func (r *Runner) Add(it Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, it)
}

// Pending reports whether any item or completion flag awaits the next
// blocked window.
func (r *Runner) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue) > 0 || r.pendingFloodFill || r.embeddingDirty
}

// QueueFloodFill flags a connectivity change to honor after the current
// batch completes.
func (r *Runner) QueueFloodFill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingFloodFill = true
}

// MarkEmbeddingDirty flags a traversal-cost change to honor after the
// current batch completes.
func (r *Runner) MarkEmbeddingDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingDirty = true
}

// Process runs queued items in order until the queue drains or an item
// yields. Returns true when everything, including completion flags, is done.
// Host thread, blocked window only.
func (r *Runner) Process(force bool) bool {
	r.mu.Lock()
	if r.processing {
		r.mu.Unlock()
		log.Error("work item attempted to re-enter the runner; rejected")
		return false
	}
	r.processing = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.processing = false
		r.mu.Unlock()
	}()

	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			break
		}
		it := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		done := it.run(force)
		if !done {
			if force {
				log.Error("work item reported incomplete under force; dropping it")
				continue
			}
			// Yield: the item keeps its place at the head for the next tick.
			r.mu.Lock()
			r.queue = append([]Item{it}, r.queue...)
			r.mu.Unlock()
			return false
		}
	}

	r.runCompletionFlags()
	return true
}

func (r *Runner) runCompletionFlags() {
	r.mu.Lock()
	flood := r.pendingFloodFill
	r.pendingFloodFill = false
	dirty := r.embeddingDirty
	r.embeddingDirty = false
	r.mu.Unlock()

	if flood && r.OnFloodFill != nil {
		r.OnFloodFill()
	}
	if dirty && r.OnRecalculateEmbedding != nil {
		r.OnRecalculateEmbedding()
	}
}
