// ============================================================================
// Wayfinder Graph Updates - Async Updater
// ============================================================================
//
// Package: internal/updates
// File: async.go
// Purpose: The dedicated goroutine that applies updates whose graphs want
//          off-host execution
//
// The updater parks on a one-slot wake channel, the channel idiom for an
// auto-reset event: any number of wakes while parked collapse into one.
// Work still only arrives while the search workers are blocked, so the
// updater never races a search; it only overlaps the host thread, which is
// waiting for Drained.
//
// A panic from a graph's UpdateArea is logged and the update dropped;
// subsequent updates continue.
//
// ============================================================================

package updates

import (
	"log/slog"
	"sync"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
)

var log = slog.Default()

type task struct {
	g graph.Graph
	u *graph.UpdateObject
}

// AsyncUpdater owns the async graph-update goroutine.
type AsyncUpdater struct {
	mu         sync.Mutex
	queue      []task
	processing bool

	wake chan struct{}
	stop chan struct{}
	done sync.WaitGroup
}

// NewAsyncUpdater constructs and starts the updater goroutine.
func NewAsyncUpdater() *AsyncUpdater {
	a := &AsyncUpdater{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	a.done.Add(1)
	go a.run()
	return a
}

// Enqueue hands a graph/update pair to the updater. Wake must follow once
// the batch is queued.
func (a *AsyncUpdater) Enqueue(g graph.Graph, u *graph.UpdateObject) {
	a.mu.Lock()
	a.queue = append(a.queue, task{g: g, u: u})
	a.mu.Unlock()
}

// Wake signals the updater that work is queued.
func (a *AsyncUpdater) Wake() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Drained reports whether the updater is idle with an empty queue.
func (a *AsyncUpdater) Drained() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue) == 0 && !a.processing
}

// WaitDrained spins until the updater is idle. Host thread only.
func (a *AsyncUpdater) WaitDrained() {
	for !a.Drained() {
		time.Sleep(time.Millisecond)
	}
}

// Stop terminates the updater goroutine and waits for it to exit. A drain
// already under way keeps applying tasks until the queue is empty; tasks
// still queued once the goroutine has stopped are not applied.
func (a *AsyncUpdater) Stop() {
	close(a.stop)
	a.done.Wait()
}

func (a *AsyncUpdater) run() {
	defer a.done.Done()
	for {
		select {
		case <-a.stop:
			return
		case <-a.wake:
			a.drain()
		}
	}
}

func (a *AsyncUpdater) drain() {
	for {
		a.mu.Lock()
		if len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		t := a.queue[0]
		a.queue = a.queue[1:]
		a.processing = true
		a.mu.Unlock()

		a.apply(t)

		a.mu.Lock()
		a.processing = false
		a.mu.Unlock()
	}
}

func (a *AsyncUpdater) apply(t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("async graph update panicked; update dropped",
				"update", t.u.ID, "cause", r)
		}
	}()
	if err := t.g.UpdateArea(t.u); err != nil {
		log.Error("async graph update failed; update dropped",
			"update", t.u.ID, "error", err)
	}
}
