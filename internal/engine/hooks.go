// ============================================================================
// Wayfinder Engine - Listener Registries
// ============================================================================
//
// Package: internal/engine
// File: hooks.go
// Purpose: Per-engine hook lists with snapshot-before-iterate semantics
//
// Registries belong to one engine; nothing here is process-global. Firing
// snapshots the list first, so registration from another goroutine (or from
// inside a listener) never mutates a list mid-iteration. The search hooks
// fire on worker goroutines and their listeners must be reentrant; every
// other hook fires on the host thread.
//
// ============================================================================

package engine

import (
	"sync"

	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/internal/search"
)

type listenerList[T any] struct {
	mu  sync.Mutex
	fns []T
}

func (l *listenerList[T]) add(fn T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *listenerList[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.fns))
	copy(out, l.fns)
	return out
}

func (l *listenerList[T]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = nil
}

// takeAll clears the list and returns what it held.
func (l *listenerList[T]) takeAll() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.fns
	l.fns = nil
	return out
}

// hooks bundles every listener registry the engine exposes.
type hooks struct {
	awakeSettings listenerList[func()]

	preScan       listenerList[func()]
	graphPreScan  listenerList[func(graph.Graph)]
	graphPostScan listenerList[func(graph.Graph)]
	postScan      listenerList[func()]
	latePostScan  listenerList[func()]

	pathPreSearch  listenerList[func(*search.Path)]
	pathPostSearch listenerList[func(*search.Path)]

	graphsUpdated listenerList[func()]

	// overflow65k is one-shot: it fires on the next path-id wrap and clears.
	overflow65k listenerList[func()]
}

func (h *hooks) clearAll() {
	h.awakeSettings.clear()
	h.preScan.clear()
	h.graphPreScan.clear()
	h.graphPostScan.clear()
	h.postScan.clear()
	h.latePostScan.clear()
	h.pathPreSearch.clear()
	h.pathPostSearch.clear()
	h.graphsUpdated.clear()
	h.overflow65k.clear()
}

// ============================================================================
// Registration surface
// ============================================================================

// OnAwakeSettings registers a listener fired once, at the start of the
// first scan, so subscribers can adjust settings before any graph exists.
// Host thread.
func (e *Engine) OnAwakeSettings(fn func()) { e.hooks.awakeSettings.add(fn) }

// OnPreScan registers a listener fired before a scan begins. Host thread.
func (e *Engine) OnPreScan(fn func()) { e.hooks.preScan.add(fn) }

// OnGraphPreScan registers a listener fired before each graph scans.
// Host thread.
func (e *Engine) OnGraphPreScan(fn func(graph.Graph)) { e.hooks.graphPreScan.add(fn) }

// OnGraphPostScan registers a listener fired after each graph scans.
// Host thread.
func (e *Engine) OnGraphPostScan(fn func(graph.Graph)) { e.hooks.graphPostScan.add(fn) }

// OnPostScan registers a listener fired after all graphs scanned, before
// the flood fill. Host thread.
func (e *Engine) OnPostScan(fn func()) { e.hooks.postScan.add(fn) }

// OnLatePostScan registers a listener fired after the post-scan flood fill.
// Host thread.
func (e *Engine) OnLatePostScan(fn func()) { e.hooks.latePostScan.add(fn) }

// OnPathPreSearch registers a listener fired on the worker goroutine before
// each search. Listeners must be reentrant.
func (e *Engine) OnPathPreSearch(fn func(*search.Path)) { e.hooks.pathPreSearch.add(fn) }

// OnPathPostSearch registers a listener fired on the worker goroutine after
// each search. Listeners must be reentrant.
func (e *Engine) OnPathPostSearch(fn func(*search.Path)) { e.hooks.pathPostSearch.add(fn) }

// OnGraphsUpdated registers a listener fired after a graph-update batch
// applies. Host thread.
func (e *Engine) OnGraphsUpdated(fn func()) { e.hooks.graphsUpdated.add(fn) }

// On65KOverflow registers a one-shot listener fired when the path-id space
// wraps; the registration clears after it fires. Host thread.
func (e *Engine) On65KOverflow(fn func()) { e.hooks.overflow65k.add(fn) }
