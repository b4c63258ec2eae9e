// ============================================================================
// Wayfinder Graph Updates - Update Scheduler
// ============================================================================
//
// Package: internal/updates
// File: scheduler.go
// Purpose: Batch, rate-limit and route graph-update requests
//
// Requests arrive immediately or delayed. Each tick, due requests move into
// the pending batch; the batch flushes into one resumable work item unless
// the rate limit still holds, in which case later enqueues coalesce into
// the same batch. Flush overrides the limit.
//
// At flush time every update is classified per target graph:
//   main         - applied serially by the work item on the host thread
//   separate+init- init half on the host thread, body on the async updater
//   separate     - whole update on the async updater
// Async work must drain before the batch's host-thread updates run, so any
// single graph observes its updates in enqueue order.
//
// After the batch applies: a flood-fill is queued if any update demanded
// one, the heuristic embedding is marked dirty if traversal costs changed,
// and the graphs-updated hook fires.
//
// ============================================================================

package updates

import (
	"sync"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/internal/workitems"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

type delayedUpdate struct {
	due time.Time
	u   *graph.UpdateObject
}

// Scheduler accepts update requests and turns them into work items.
type Scheduler struct {
	mu      sync.Mutex
	pending []*graph.UpdateObject
	delayed []delayedUpdate

	lastFlush     time.Time
	limitInterval time.Duration

	runner  *workitems.Runner
	updater *AsyncUpdater
	graphs  func() []graph.Graph

	// OnGraphsUpdated fires on the host thread after a batch applies, with
	// the number of update/graph pairs executed.
	OnGraphsUpdated func(applied int)
}

// NewScheduler constructs a scheduler. limitInterval of zero disables rate
// limiting. graphs provides the engine's current graph list at flush time.
func NewScheduler(runner *workitems.Runner, updater *AsyncUpdater, graphs func() []graph.Graph, limitInterval time.Duration) *Scheduler {
	return &Scheduler{
		runner:        runner,
		updater:       updater,
		graphs:        graphs,
		limitInterval: limitInterval,
	}
}

// Add accepts an update, optionally delayed. The object must not be mutated
// after this call.
func (s *Scheduler) Add(u *graph.UpdateObject, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay > 0 {
		s.delayed = append(s.delayed, delayedUpdate{due: time.Now().Add(delay), u: u})
		return
	}
	s.pending = append(s.pending, u)
}

// PendingCount returns the number of accepted-but-unflushed updates.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + len(s.delayed)
}

// Tick promotes due delayed updates and flushes the batch when the rate
// limit allows. Host thread.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.Lock()
	kept := s.delayed[:0]
	for _, d := range s.delayed {
		if !d.due.After(now) {
			s.pending = append(s.pending, d.u)
		} else {
			kept = append(kept, d)
		}
	}
	s.delayed = kept

	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	if s.limitInterval > 0 && now.Sub(s.lastFlush) < s.limitInterval {
		// Inside the batching window; later enqueues coalesce.
		s.mu.Unlock()
		return
	}
	s.flushLocked(now)
	s.mu.Unlock()
}

// Flush forces the batch out, overriding the rate limit. A flush with
// nothing pending is a no-op. Host thread.
func (s *Scheduler) Flush(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.delayed {
		s.pending = append(s.pending, d.u)
	}
	s.delayed = nil
	if len(s.pending) == 0 {
		return
	}
	s.flushLocked(now)
}

// flushLocked moves the batch into one resumable work item. Caller holds
// s.mu.
func (s *Scheduler) flushLocked(now time.Time) {
	batch := s.pending
	s.pending = nil
	s.lastFlush = now

	var mainTasks []task
	applied := 0
	costsChanged := false
	needFloodFill := false

	s.runner.Add(workitems.Resumable(
		func() {
			// Classify and dispatch. The init half of split updates runs
			// here, on the host thread, before the async body.
			graphs := s.graphs()
			asyncCount := 0
			for _, u := range batch {
				if u.RequiresFloodFill {
					needFloodFill = true
				}
				if u.SetWalkable != nil || u.PenaltyDelta != 0 {
					costsChanged = true
				}
				for _, g := range graphs {
					applied++
					switch g.ThreadingClass(u) {
					case types.UpdateMainThread:
						mainTasks = append(mainTasks, task{g: g, u: u})
					case types.UpdateSeparateAndMainInit:
						if !s.applyInit(g, u) {
							applied--
							continue
						}
						s.updater.Enqueue(g, u)
						asyncCount++
					case types.UpdateSeparateThread:
						s.updater.Enqueue(g, u)
						asyncCount++
					}
				}
			}
			if asyncCount > 0 {
				s.updater.Wake()
			}
		},
		func(force bool) bool {
			// Host-thread updates wait for the async half of the batch.
			if !s.updater.Drained() {
				if !force {
					return false
				}
				s.updater.WaitDrained()
			}
			for _, t := range mainTasks {
				s.applyMain(t)
			}
			mainTasks = nil

			if needFloodFill {
				s.runner.QueueFloodFill()
			}
			if costsChanged {
				s.runner.MarkEmbeddingDirty()
			}
			if s.OnGraphsUpdated != nil {
				s.OnGraphsUpdated(applied)
			}
			return true
		},
	))
}

// applyInit runs the host half of a split update. Reports false when the
// update is dropped.
func (s *Scheduler) applyInit(g graph.Graph, u *graph.UpdateObject) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("graph update init panicked; update dropped",
				"update", u.ID, "cause", r)
			ok = false
		}
	}()
	if err := g.UpdateAreaInit(u); err != nil {
		log.Error("graph update init failed; update dropped",
			"update", u.ID, "error", err)
		return false
	}
	return true
}

// applyMain runs both halves of a host-thread update.
func (s *Scheduler) applyMain(t task) {
	if !s.applyInit(t.g, t.u) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("graph update panicked; update dropped",
				"update", t.u.ID, "cause", r)
		}
	}()
	if err := t.g.UpdateArea(t.u); err != nil {
		log.Error("graph update failed; update dropped",
			"update", t.u.ID, "error", err)
	}
}
