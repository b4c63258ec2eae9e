// ============================================================================
// Wayfinder Search - Search Worker
// ============================================================================
//
// Package: internal/search
// File: worker.go
// Purpose: The search loop, runnable either on its own goroutine or stepped
//          cooperatively from the host tick
//
// Both modes share one state machine: pop a request, prepare and seed it,
// then expand until done, yielding whenever the per-slice budget runs out.
// The threaded mode parks inside PopBlocking between requests; the
// cooperative mode reports itself blocked through the queue's non-blocking
// pop so the host can observe quiescence between requests.
//
// The slice budget is re-read from the shared settings on every yield, so
// live tuning applies mid-search.
//
// A panic escaping the search is fatal for the receiver: the current path is
// errored and still pushed for return, then the fatal hook fires (the engine
// terminates the queue, draining every worker).
//
// ============================================================================

package search

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/pathqueue"
	"github.com/NeonPandaSp/wayfinder/internal/pipeline"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// Settings is tuning state shared between the host and every worker.
type Settings struct {
	maxFrameTime atomic.Int64
}

// NewSettings constructs settings with the given per-slice search budget.
func NewSettings(maxFrameTime time.Duration) *Settings {
	s := &Settings{}
	s.maxFrameTime.Store(int64(maxFrameTime))
	return s
}

// MaxFrameTime returns the per-slice search budget.
func (s *Settings) MaxFrameTime() time.Duration {
	return time.Duration(s.maxFrameTime.Load())
}

// SetMaxFrameTime adjusts the per-slice search budget. Safe from any thread.
func (s *Settings) SetMaxFrameTime(d time.Duration) {
	s.maxFrameTime.Store(int64(d))
}

// Hooks are the worker-side listener entry points. Both fire on the worker
// goroutine and must be reentrant.
type Hooks struct {
	PreSearch  Callback
	PostSearch Callback
}

// Worker runs searches popped from the path queue.
type Worker struct {
	id       int
	queue    *pathqueue.Queue[*Path]
	handler  *PathHandler
	returns  *pipeline.Stack[*Path]
	settings *Settings
	hooks    Hooks
	onFatal  func(workerID int, cause interface{})

	// Cooperative state.
	current       *Path
	blockedBefore bool
}

// NewWorker constructs a worker. onFatal fires after an escaped panic; the
// engine uses it to terminate the queue.
func NewWorker(id int, queue *pathqueue.Queue[*Path], handler *PathHandler, returns *pipeline.Stack[*Path], settings *Settings, hooks Hooks, onFatal func(int, interface{})) *Worker {
	return &Worker{
		id:       id,
		queue:    queue,
		handler:  handler,
		returns:  returns,
		settings: settings,
		hooks:    hooks,
		onFatal:  onFatal,
	}
}

// Handler returns the worker's scratch table, for blocked-window growth.
func (w *Worker) Handler() *PathHandler { return w.handler }

// RunThreaded is the goroutine body of a threaded worker. It exits when the
// queue terminates.
func (w *Worker) RunThreaded() {
	defer func() {
		if r := recover(); r != nil {
			w.fail(r)
		}
	}()

	for {
		p, err := w.queue.PopBlocking()
		if err != nil {
			return
		}
		w.begin(p)
		for !p.IsDone() {
			if w.queue.IsTerminating() {
				p.FailWithError("search aborted: engine terminating")
				break
			}
			p.CalculateStep(time.Now().Add(w.settings.MaxFrameTime()))
			if !p.IsDone() {
				runtime.Gosched()
			}
		}
		w.complete(p)
	}
}

// StepCooperative advances the cooperative worker one time slice. Returns
// true when it did search work.
func (w *Worker) StepCooperative() bool {
	defer func() {
		if r := recover(); r != nil {
			w.fail(r)
		}
	}()

	if w.current == nil {
		p, ok, err := w.queue.PopNonBlocking(w.blockedBefore)
		if err != nil {
			return false
		}
		w.blockedBefore = !ok
		if !ok {
			return false
		}
		w.begin(p)
		if p.IsDone() {
			w.complete(p)
		}
		return true
	}

	p := w.current
	if w.queue.IsTerminating() {
		p.FailWithError("search aborted: engine terminating")
		w.complete(p)
		return true
	}
	p.CalculateStep(time.Now().Add(w.settings.MaxFrameTime()))
	if p.IsDone() {
		w.complete(p)
	}
	return true
}

// begin claims the request and runs preparation. A request that fails
// preparation is already done here and skips Initialize.
func (w *Worker) begin(p *Path) {
	w.current = p
	p.AdvanceState(types.PathProcessing)
	p.PrepareBase(w.handler)
	if w.hooks.PreSearch != nil {
		w.hooks.PreSearch(p)
	}
	p.Prepare()
	if !p.IsDone() {
		p.Initialize()
	}
}

// complete hands the finished request to the return pipeline.
func (w *Worker) complete(p *Path) {
	w.current = nil
	p.Cleanup()
	if w.hooks.PostSearch != nil {
		w.hooks.PostSearch(p)
	}
	p.InvokeImmediateCallback()
	p.AdvanceState(types.PathReturnQueue)
	w.returns.Push(p)
}

// fail errors the in-flight request, still returns it to the caller, then
// reports the receiver as dead.
func (w *Worker) fail(cause interface{}) {
	if p := w.current; p != nil {
		p.FailWithError("search worker panic: %v", cause)
		w.complete(p)
	}
	if w.onFatal != nil {
		w.onFatal(w.id, cause)
	}
}
