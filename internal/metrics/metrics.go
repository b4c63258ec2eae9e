// ============================================================================
// Wayfinder Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose engine metrics for Prometheus scraping
//
// Metric families:
//
//   Counters (cumulative):
//     pathfinder_paths_queued_total     - requests accepted by StartPath
//     pathfinder_paths_completed_total  - requests returned without error
//     pathfinder_paths_errored_total    - requests returned with the error flag
//     pathfinder_graph_updates_total    - update/graph pairs applied
//     pathfinder_flood_fills_total      - connected-area recomputations
//
//   Histograms:
//     pathfinder_path_search_seconds    - worker time per search
//     pathfinder_flood_fill_seconds     - flood-fill duration
//
//   Gauges (instantaneous):
//     pathfinder_queue_length           - requests waiting in the path queue
//     pathfinder_workers_blocked        - receivers currently parked
//
// Exposed through /metrics via promhttp by the run command.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the engine's metric families.
type Collector struct {
	pathsQueued    prometheus.Counter
	pathsCompleted prometheus.Counter
	pathsErrored   prometheus.Counter
	graphUpdates   prometheus.Counter
	floodFills     prometheus.Counter

	searchLatency     prometheus.Histogram
	floodFillDuration prometheus.Histogram

	queueLength    prometheus.Gauge
	workersBlocked prometheus.Gauge
}

// NewCollector creates and registers the engine metrics on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry, or a private
// registry in tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pathsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathfinder_paths_queued_total",
			Help: "Total number of path requests accepted",
		}),
		pathsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathfinder_paths_completed_total",
			Help: "Total number of path requests returned successfully",
		}),
		pathsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathfinder_paths_errored_total",
			Help: "Total number of path requests returned with an error",
		}),
		graphUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathfinder_graph_updates_total",
			Help: "Total number of graph update applications",
		}),
		floodFills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pathfinder_flood_fills_total",
			Help: "Total number of connected-area recomputations",
		}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathfinder_path_search_seconds",
			Help:    "Worker time spent per path search in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		floodFillDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pathfinder_flood_fill_seconds",
			Help:    "Flood fill duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathfinder_queue_length",
			Help: "Current number of requests waiting in the path queue",
		}),
		workersBlocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pathfinder_workers_blocked",
			Help: "Current number of parked search receivers",
		}),
	}

	reg.MustRegister(
		c.pathsQueued,
		c.pathsCompleted,
		c.pathsErrored,
		c.graphUpdates,
		c.floodFills,
		c.searchLatency,
		c.floodFillDuration,
		c.queueLength,
		c.workersBlocked,
	)
	return c
}

// RecordQueued counts one accepted request. Nil-safe.
func (c *Collector) RecordQueued() {
	if c == nil {
		return
	}
	c.pathsQueued.Inc()
}

// RecordReturned counts one returned request with its search duration.
// Nil-safe.
func (c *Collector) RecordReturned(errored bool, searchSeconds float64) {
	if c == nil {
		return
	}
	if errored {
		c.pathsErrored.Inc()
	} else {
		c.pathsCompleted.Inc()
	}
	c.searchLatency.Observe(searchSeconds)
}

// RecordGraphUpdates counts applied update/graph pairs. Nil-safe.
func (c *Collector) RecordGraphUpdates(n int) {
	if c == nil {
		return
	}
	c.graphUpdates.Add(float64(n))
}

// RecordFloodFill counts one recomputation with its duration. Nil-safe.
func (c *Collector) RecordFloodFill(seconds float64) {
	if c == nil {
		return
	}
	c.floodFills.Inc()
	c.floodFillDuration.Observe(seconds)
}

// UpdateQueueStats refreshes the instantaneous gauges. Nil-safe.
func (c *Collector) UpdateQueueStats(queueLength, workersBlocked int) {
	if c == nil {
		return
	}
	c.queueLength.Set(float64(queueLength))
	c.workersBlocked.Set(float64(workersBlocked))
}

// StartServer serves /metrics on the given port. Blocks.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
