// ============================================================================
// Wayfinder Engine - Lifecycle and Tick Pump
// ============================================================================
//
// Package: internal/engine
// File: engine.go
// Purpose: Top-level coordinator owning the queue, the workers, the deferred
//          work pipeline and the return pipeline
//
// Per-tick control flow:
//   1. Promote due graph updates into the work-item queue.
//   2. Advance the cooperative worker one slice, when configured.
//   3. Opportunistic blocking: if deferred work is pending, block the path
//      queue; once every receiver is parked, drain returns, run the safe
//      callbacks, execute work items until a yield point, then unblock.
//   4. Drain the return pipeline under the per-tick budget regardless.
//
// Shared-state rules:
//   - Graph data mutates only while AllReceiversBlocked holds; workers read
//     it freely between blocked windows.
//   - Node index and path id allocation happen on the host thread only.
//   - The safe-callback slot is guarded by its own mutex; registration is
//     an atomic append from any goroutine.
//
// The engine is not restartable: after Destroy (or a fatal worker error
// terminates the queue) a new engine must be constructed.
//
// ============================================================================

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/floodfill"
	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/internal/ident"
	"github.com/NeonPandaSp/wayfinder/internal/metrics"
	"github.com/NeonPandaSp/wayfinder/internal/pathqueue"
	"github.com/NeonPandaSp/wayfinder/internal/pipeline"
	"github.com/NeonPandaSp/wayfinder/internal/search"
	"github.com/NeonPandaSp/wayfinder/internal/updates"
	"github.com/NeonPandaSp/wayfinder/internal/workitems"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

var log = slog.Default()

var (
	// ErrNotCreated is returned when starting a path that already left the
	// created state.
	ErrNotCreated = errors.New("path has already been started")
	// ErrNoGraphs is returned when starting a path with no graphs added.
	ErrNoGraphs = errors.New("no graphs have been added to the engine")
	// ErrNotAccepting is returned once the engine stopped taking new paths.
	ErrNotAccepting = errors.New("engine is accepting no new paths")
	// ErrPathNotStarted is returned when waiting on a path never started.
	ErrPathNotStarted = errors.New("cannot wait for a path that was not started")
	// ErrDestroyed is returned from calls made during or after teardown.
	ErrDestroyed = errors.New("engine has been destroyed")
)

// WorkersAuto sizes the worker pool from the host's logical cores.
const WorkersAuto = -1

// returnBudget bounds per-tick completion work.
const returnBudget = time.Millisecond

// minReturnsPerTick is delivered per drain even with the budget exhausted.
const minReturnsPerTick = 5

// waitDepthWarning is the WaitForPath nesting depth that draws a warning.
const waitDepthWarning = 5

// Config tunes one engine instance.
type Config struct {
	// WorkerCount is the number of search goroutines. WorkersAuto derives it
	// from the host; zero runs a single cooperative worker stepped by Tick.
	WorkerCount int
	// MaxFrameTime is the slice handed to a search between yields.
	MaxFrameTime time.Duration
	// MinAreaSize is the component size below which area ids may be
	// reclaimed under id exhaustion.
	MinAreaSize int
	// MaxNearestNodeDistance rejects nearest results farther than this.
	MaxNearestNodeDistance float64
	// PrioritizeGraphs stops the nearest scan at the first graph within
	// PrioritizeGraphsLimit.
	PrioritizeGraphs      bool
	PrioritizeGraphsLimit float64
	// BatchGraphUpdates rate-limits update flushes to one per interval.
	BatchGraphUpdates           bool
	GraphUpdateBatchingInterval time.Duration
	// HeuristicEmbedding enables the pivot-distance heuristic.
	HeuristicEmbedding bool
	// EmbeddingPivots is the pivot budget when the embedding is enabled.
	EmbeddingPivots int
	// Metrics, when set, receives engine instrumentation.
	Metrics *metrics.Collector
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		WorkerCount:                 WorkersAuto,
		MaxFrameTime:                time.Millisecond,
		MinAreaSize:                 10,
		MaxNearestNodeDistance:      100,
		PrioritizeGraphsLimit:       1,
		BatchGraphUpdates:           true,
		GraphUpdateBatchingInterval: 200 * time.Millisecond,
		EmbeddingPivots:             8,
	}
}

// Engine is one pathfinding engine instance.
type Engine struct {
	cfg Config

	alloc   *ident.NodeIndexAllocator
	pathIDs *ident.PathIDGenerator

	graphs []graph.Graph

	queue       *pathqueue.Queue[*search.Path]
	returnStack *pipeline.Stack[*search.Path]
	drainer     *pipeline.Drainer[*search.Path]
	runner      *workitems.Runner
	updater     *updates.AsyncUpdater
	scheduler   *updates.Scheduler
	settings    *search.Settings
	embedding   *search.HeuristicEmbedding

	workers  []*search.Worker
	coop     *search.Worker
	workerWG sync.WaitGroup

	hooks hooks

	safeMu        sync.Mutex
	safeCallbacks []func()

	queueBlocked bool
	waitDepth    int
	awakeFired   bool
	destroyed    atomic.Bool

	metrics *metrics.Collector
}

// New constructs and starts an engine. Worker goroutines launch immediately;
// graphs are added afterwards and scanned before the first path starts.
func New(cfg Config) *Engine {
	workerCount := cfg.WorkerCount
	if workerCount == WorkersAuto {
		workerCount = runtime.NumCPU() - 1
		if workerCount < 1 {
			workerCount = 1
		}
		if workerCount > 8 {
			workerCount = 8
		}
	}
	if cfg.MaxFrameTime <= 0 {
		cfg.MaxFrameTime = time.Millisecond
	}

	receivers := workerCount
	if receivers == 0 {
		// The cooperative worker is still a receiver; quiescence is
		// observable through the same accounting.
		receivers = 1
	}

	e := &Engine{
		cfg:         cfg,
		alloc:       ident.NewNodeIndexAllocator(),
		pathIDs:     ident.NewPathIDGenerator(),
		queue:       pathqueue.New[*search.Path](receivers),
		returnStack: &pipeline.Stack[*search.Path]{},
		runner:      workitems.NewRunner(),
		updater:     updates.NewAsyncUpdater(),
		settings:    search.NewSettings(cfg.MaxFrameTime),
		metrics:     cfg.Metrics,
	}
	e.drainer = pipeline.NewDrainer(e.returnStack, e.returnPath)
	e.scheduler = updates.NewScheduler(e.runner, e.updater, func() []graph.Graph { return e.graphs }, e.updateInterval())
	e.scheduler.OnGraphsUpdated = func(applied int) {
		e.metrics.RecordGraphUpdates(applied)
		for _, fn := range e.hooks.graphsUpdated.snapshot() {
			fn()
		}
	}
	e.runner.OnFloodFill = e.runFloodFill
	e.runner.OnRecalculateEmbedding = e.recalculateEmbedding

	if cfg.HeuristicEmbedding {
		pivots := cfg.EmbeddingPivots
		if pivots <= 0 {
			pivots = 8
		}
		e.embedding = search.NewHeuristicEmbedding(pivots)
	}

	e.installOverflowHandler()

	workerHooks := search.Hooks{
		PreSearch: func(p *search.Path) {
			for _, fn := range e.hooks.pathPreSearch.snapshot() {
				fn(p)
			}
		},
		PostSearch: func(p *search.Path) {
			for _, fn := range e.hooks.pathPostSearch.snapshot() {
				fn(p)
			}
		},
	}
	onFatal := func(id int, cause interface{}) {
		log.Error("search worker died; terminating the engine",
			"worker", id, "cause", cause)
		e.queue.Terminate()
	}

	if workerCount == 0 {
		e.coop = search.NewWorker(0, e.queue, search.NewPathHandler(0, e.alloc.Cap()), e.returnStack, e.settings, workerHooks, onFatal)
	} else {
		for i := 0; i < workerCount; i++ {
			w := search.NewWorker(i, e.queue, search.NewPathHandler(i, e.alloc.Cap()), e.returnStack, e.settings, workerHooks, onFatal)
			e.workers = append(e.workers, w)
			e.workerWG.Add(1)
			go func(w *search.Worker) {
				defer e.workerWG.Done()
				w.RunThreaded()
			}(w)
		}
	}

	log.Info("engine started", "workers", workerCount, "cooperative", workerCount == 0)
	return e
}

func (e *Engine) updateInterval() time.Duration {
	if !e.cfg.BatchGraphUpdates {
		return 0
	}
	return e.cfg.GraphUpdateBatchingInterval
}

// Settings exposes the live worker tuning.
func (e *Engine) Settings() *search.Settings { return e.settings }

// NodeAllocator exposes the shared node index allocator for graph
// construction.
func (e *Engine) NodeAllocator() *ident.NodeIndexAllocator { return e.alloc }

// Graphs returns the current graph list.
func (e *Engine) Graphs() []graph.Graph { return e.graphs }

// installOverflowHandler wires the path-id wrap: fire the one-shot user
// hook, schedule the visit-marker reset, and re-arm for the next wrap.
func (e *Engine) installOverflowHandler() {
	e.pathIDs.SetOverflowCallback(func() {
		for _, fn := range e.hooks.overflow65k.takeAll() {
			fn()
		}
		e.runner.Add(workitems.OneShot(e.clearHandlerPathIDs))
		e.installOverflowHandler()
	})
}

func (e *Engine) clearHandlerPathIDs() {
	e.forEachHandler(func(h *search.PathHandler) { h.ClearPathIDs() })
}

func (e *Engine) forEachHandler(fn func(*search.PathHandler)) {
	for _, w := range e.workers {
		fn(w.Handler())
	}
	if e.coop != nil {
		fn(e.coop.Handler())
	}
}

// syncHandlerCapacity grows every worker table to the allocator's range.
// Blocked window only.
func (e *Engine) syncHandlerCapacity() {
	n := e.alloc.Cap()
	e.forEachHandler(func(h *search.PathHandler) { h.EnsureCapacity(n) })
}

// ============================================================================
// Graph management
// ============================================================================

// AddGraph registers a graph. Call before Scan, or at least while no search
// can be running.
func (e *Engine) AddGraph(g graph.Graph) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	if len(e.graphs) >= 255 {
		return fmt.Errorf("graph limit reached (255)")
	}
	g.SetIndex(uint8(len(e.graphs)))
	e.graphs = append(e.graphs, g)
	return nil
}

// Scan quiesces the workers, rebuilds every graph, reassigns graph indices,
// floods areas and unblocks. Host thread.
func (e *Engine) Scan() error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	start := time.Now()
	if !e.awakeFired {
		e.awakeFired = true
		for _, fn := range e.hooks.awakeSettings.snapshot() {
			fn()
		}
	}
	for _, fn := range e.hooks.preScan.snapshot() {
		fn()
	}

	e.queue.Block()
	e.queueBlocked = true
	e.blockUntilQueueBlocked()

	for i, g := range e.graphs {
		g.SetIndex(uint8(i))
		for _, fn := range e.hooks.graphPreScan.snapshot() {
			fn(g)
		}
		if err := g.Scan(nil); err != nil {
			e.queue.Unblock()
			e.queueBlocked = false
			return fmt.Errorf("graph %d scan failed: %w", i, err)
		}
		for _, fn := range e.hooks.graphPostScan.snapshot() {
			fn(g)
		}
	}
	e.syncHandlerCapacity()

	for _, fn := range e.hooks.postScan.snapshot() {
		fn()
	}

	e.floodFillLocked()
	e.recalculateEmbedding()

	for _, fn := range e.hooks.latePostScan.snapshot() {
		fn()
	}

	e.queue.Unblock()
	e.queueBlocked = false
	log.Info("scan completed", "graphs", len(e.graphs), "nodes", e.alloc.Cap()-1, "duration", time.Since(start))
	return nil
}

// ============================================================================
// Path surface
// ============================================================================

// StartPath hands a created path to the engine. pushToFront grants the
// request one slot's worth of priority.
func (e *Engine) StartPath(p *search.Path, pushToFront bool) error {
	if e.destroyed.Load() || e.queue.IsTerminating() {
		return ErrNotAccepting
	}
	if p.State() != types.PathCreated {
		return fmt.Errorf("%w (state %s)", ErrNotCreated, p.State())
	}
	if len(e.graphs) == 0 {
		return ErrNoGraphs
	}

	p.SetID(e.pathIDs.Next())
	p.SetLocator(e)
	if e.embedding != nil {
		p.SetEmbedding(e.embedding)
	}
	p.Claim()
	p.AdvanceState(types.PathQueued)

	var err error
	if pushToFront {
		err = e.queue.PushFront(p)
	} else {
		err = e.queue.Push(p)
	}
	if err != nil {
		p.Release()
		return ErrNotAccepting
	}
	e.metrics.RecordQueued()
	return nil
}

// UpdateGraphs accepts a graph update, applied at the next flush inside a
// blocked window. delay postpones acceptance.
func (e *Engine) UpdateGraphs(u *graph.UpdateObject, delay time.Duration) {
	e.scheduler.Add(u, delay)
}

// FlushGraphUpdates forces every accepted update through, synchronously.
func (e *Engine) FlushGraphUpdates() {
	if e.destroyed.Load() {
		return
	}
	e.scheduler.Flush(time.Now())
	e.performBlocking(true)
}

// FloodFill recomputes connected areas synchronously.
func (e *Engine) FloodFill() {
	if e.destroyed.Load() {
		return
	}
	e.runner.QueueFloodFill()
	e.performBlocking(true)
}

// RegisterSafeUpdate queues fn to run exactly once inside the next blocked
// window. Safe from any goroutine.
func (e *Engine) RegisterSafeUpdate(fn func()) {
	if fn == nil {
		return
	}
	e.safeMu.Lock()
	e.safeCallbacks = append(e.safeCallbacks, fn)
	e.safeMu.Unlock()
}

func (e *Engine) hasSafeCallbacks() bool {
	e.safeMu.Lock()
	defer e.safeMu.Unlock()
	return len(e.safeCallbacks) > 0
}

func (e *Engine) runSafeCallbacks() {
	e.safeMu.Lock()
	cbs := e.safeCallbacks
	e.safeCallbacks = nil
	e.safeMu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

// ============================================================================
// Tick pump
// ============================================================================

// Tick runs one frame of engine upkeep. Host thread.
func (e *Engine) Tick() {
	if e.destroyed.Load() {
		return
	}
	e.scheduler.Tick(time.Now())

	if e.queue.IsTerminating() {
		// A fatal worker error terminated the queue; fail whatever is
		// still waiting so every callback fires.
		e.failQueuedPaths()
	} else {
		if e.coop != nil {
			e.coop.StepCooperative()
		}
		e.performBlocking(false)
	}

	e.drainer.Drain(returnBudget, minReturnsPerTick)
	e.metrics.UpdateQueueStats(e.queue.Len(), e.queue.BlockedReceivers())
}

// performBlocking runs the blocked-window work when possible. With force it
// spins until the window opens and the work completes.
func (e *Engine) performBlocking(force bool) {
	pending := e.runner.Pending() || e.hasSafeCallbacks()
	if !pending && !e.queueBlocked {
		return
	}
	if !e.queueBlocked {
		e.queue.Block()
		e.queueBlocked = true
	}
	if !e.queue.AllReceiversBlocked() {
		if !force {
			return
		}
		e.blockUntilQueueBlocked()
	}

	// Blocked window: every receiver is parked.
	e.drainer.DrainAll()
	e.runSafeCallbacks()
	e.syncHandlerCapacity()
	done := e.runner.Process(force)
	e.syncHandlerCapacity()
	if done {
		e.queue.Unblock()
		e.queueBlocked = false
	}
}

// blockUntilQueueBlocked spins until every receiver is parked, stepping the
// cooperative worker so it can finish its in-flight search.
func (e *Engine) blockUntilQueueBlocked() {
	for !e.queue.AllReceiversBlocked() {
		if e.queue.IsTerminating() {
			// Terminated receivers can no longer park; teardown owns the
			// graphs from here.
			return
		}
		if e.coop != nil {
			e.coop.StepCooperative()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// returnPath delivers one completed path to its caller.
func (e *Engine) returnPath(p *search.Path) {
	p.ReturnPath()
	e.metrics.RecordReturned(p.Errored(), p.Duration().Seconds())
	p.Release()
}

// runFloodFill executes inside the blocked window via the work-item runner.
func (e *Engine) runFloodFill() {
	start := time.Now()
	res := floodfill.Run(e.graphs, floodfill.Options{
		MinAreaSize:  e.cfg.MinAreaSize,
		MaxAreaIndex: types.MaxAreaIndex,
	})
	e.metrics.RecordFloodFill(time.Since(start).Seconds())
	if res.Warned {
		log.Warn("flood fill ran out of area ids", "components", res.Components)
	}
	log.Debug("flood fill completed",
		"components", res.Components,
		"collapsed", res.Collapsed,
		"duration", time.Since(start))
}

// floodFillLocked is the scan-time variant: the caller already holds the
// blocked window.
func (e *Engine) floodFillLocked() {
	e.runFloodFill()
}

func (e *Engine) recalculateEmbedding() {
	if e.embedding == nil {
		return
	}
	e.embedding.Recalculate(e.graphs, e.alloc.Cap())
}

// ============================================================================
// Waiting and teardown
// ============================================================================

// WaitForPath blocks the host thread until p completes, then drains returns
// so p's callback has fired when this returns. Callbacks run during the wait
// may start and wait for further paths; nesting past a small depth draws a
// warning.
func (e *Engine) WaitForPath(p *search.Path) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}
	if p == nil || p.State() == types.PathCreated {
		return ErrPathNotStarted
	}

	e.waitDepth++
	if e.waitDepth >= waitDepthWarning {
		log.Warn("WaitForPath is deeply nested; callbacks are waiting inside callbacks",
			"depth", e.waitDepth)
	}
	defer func() { e.waitDepth-- }()

	for p.State() < types.PathReturnQueue {
		if e.queue.IsTerminating() {
			e.failQueuedPaths()
			break
		}
		if e.coop != nil {
			e.coop.StepCooperative()
		} else {
			time.Sleep(time.Millisecond)
		}
		e.performBlocking(false)
	}

	for p.State() < types.PathReturned {
		e.drainer.DrainAll()
		if p.State() >= types.PathReturned {
			break
		}
		if e.queue.IsTerminating() && p.State() < types.PathReturnQueue {
			return fmt.Errorf("engine terminated before the path completed")
		}
		runtime.Gosched()
	}
	return nil
}

// failQueuedPaths errors everything still waiting in the queue and routes
// it through the return pipeline.
func (e *Engine) failQueuedPaths() {
	for _, p := range e.queue.Drain() {
		p.FailWithError("search aborted: engine terminating")
		p.AdvanceState(types.PathReturnQueue)
		e.returnStack.Push(p)
	}
}

// Destroy terminates the queue, joins the workers, fails whatever never
// ran, flushes the return pipeline and clears every registry. The engine is
// unusable afterwards.
func (e *Engine) Destroy() {
	if !e.destroyed.CompareAndSwap(false, true) {
		return
	}
	log.Info("destroying engine")

	e.queue.Terminate()

	// Let a cooperative in-flight search observe termination and finish.
	if e.coop != nil {
		e.coop.StepCooperative()
	}

	joined := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(500 * time.Millisecond):
		log.Warn("search workers did not exit in time; abandoning them")
	}

	e.updater.Stop()

	e.failQueuedPaths()
	e.drainer.DrainAll()

	e.hooks.clearAll()
	e.safeMu.Lock()
	e.safeCallbacks = nil
	e.safeMu.Unlock()

	log.Info("engine destroyed")
}
