// ============================================================================
// Wayfinder CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command surface over the pathfinding engine
//
// Command Structure:
//   wayfinder                       # Root command
//   ├── run                         # Long-lived demo world under load
//   │   └── --config, -c            # Config file (YAML)
//   ├── bench                       # Fixed-count latency benchmark
//   │   ├── --count, -n             # Number of requests
//   │   └── --inflight              # Max simultaneous requests
//   ├── --version                   # Version information
//   └── --help                      # Help
//
// run builds a grid world from the config, starts the engine and a metrics
// endpoint, then issues a steady stream of random path requests until
// SIGINT/SIGTERM, shutting down gracefully.
//
// bench issues a fixed number of requests against the same world and prints
// latency statistics.
//
// ============================================================================

package cli

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/NeonPandaSp/wayfinder/internal/engine"
	"github.com/NeonPandaSp/wayfinder/internal/graph"
	"github.com/NeonPandaSp/wayfinder/internal/metrics"
	"github.com/NeonPandaSp/wayfinder/internal/search"
	"github.com/NeonPandaSp/wayfinder/pkg/types"
)

// Config maps the YAML configuration file.
type Config struct {
	Engine struct {
		ThreadCount                   string `yaml:"thread_count"`
		MaxFrameTimeMs                int    `yaml:"max_frame_time_ms"`
		MinAreaSize                   int    `yaml:"min_area_size"`
		BatchGraphUpdates             bool   `yaml:"batch_graph_updates"`
		GraphUpdateBatchingIntervalMs int    `yaml:"graph_update_batching_interval_ms"`
	} `yaml:"engine"`

	Nearest struct {
		MaxNearestNodeDistance float64 `yaml:"max_nearest_node_distance"`
		PrioritizeGraphs       bool    `yaml:"prioritize_graphs"`
		PrioritizeGraphsLimit  float64 `yaml:"prioritize_graphs_limit"`
	} `yaml:"nearest"`

	Grid struct {
		Width           int     `yaml:"width"`
		Depth           int     `yaml:"depth"`
		NodeSize        float64 `yaml:"node_size"`
		ObstacleDensity float64 `yaml:"obstacle_density"`
		Seed            int64   `yaml:"seed"`
	} `yaml:"grid"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// BuildCLI assembles the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wayfinder",
		Short: "Wayfinder: a concurrent graph pathfinding engine",
		Long: `Wayfinder is a concurrent graph pathfinding engine with:
- A pool of search workers fed from a blocking path queue
- Quiesced graph updates batched through a deferred work pipeline
- Connected-area flood filling
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildBenchCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var rate int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo world under a steady request load",
		Long:  "Build a grid world from the config, start the engine and serve metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem(rate)
		},
	}

	cmd.Flags().IntVar(&rate, "rate", 50, "path requests issued per second")
	return cmd
}

func buildBenchCommand() *cobra.Command {
	var count int
	var inflight int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark request latency against the demo world",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(count, inflight)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1000, "number of path requests")
	cmd.Flags().IntVar(&inflight, "inflight", 64, "maximum simultaneous requests")
	return cmd
}

// ============================================================================
// Wiring
// ============================================================================

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

func resolveThreadCount(s string) (int, error) {
	switch s {
	case "", "auto":
		return engine.WorkersAuto, nil
	case "none":
		return 0, nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid thread_count %q (auto, none, or a non-negative integer)", s)
		}
		return n, nil
	}
}

func engineConfig(cfg *Config, collector *metrics.Collector) (engine.Config, error) {
	workers, err := resolveThreadCount(cfg.Engine.ThreadCount)
	if err != nil {
		return engine.Config{}, err
	}
	ec := engine.DefaultConfig()
	ec.WorkerCount = workers
	if cfg.Engine.MaxFrameTimeMs > 0 {
		ec.MaxFrameTime = time.Duration(cfg.Engine.MaxFrameTimeMs) * time.Millisecond
	}
	if cfg.Engine.MinAreaSize > 0 {
		ec.MinAreaSize = cfg.Engine.MinAreaSize
	}
	ec.BatchGraphUpdates = cfg.Engine.BatchGraphUpdates
	if cfg.Engine.GraphUpdateBatchingIntervalMs > 0 {
		ec.GraphUpdateBatchingInterval = time.Duration(cfg.Engine.GraphUpdateBatchingIntervalMs) * time.Millisecond
	}
	if cfg.Nearest.MaxNearestNodeDistance > 0 {
		ec.MaxNearestNodeDistance = cfg.Nearest.MaxNearestNodeDistance
	}
	ec.PrioritizeGraphs = cfg.Nearest.PrioritizeGraphs
	if cfg.Nearest.PrioritizeGraphsLimit > 0 {
		ec.PrioritizeGraphsLimit = cfg.Nearest.PrioritizeGraphsLimit
	}
	ec.Metrics = collector
	return ec, nil
}

// buildWorld constructs the engine plus a scanned grid from the config.
func buildWorld(cfg *Config, collector *metrics.Collector) (*engine.Engine, *graph.GridGraph, error) {
	ec, err := engineConfig(cfg, collector)
	if err != nil {
		return nil, nil, err
	}
	e := engine.New(ec)

	width, depth := cfg.Grid.Width, cfg.Grid.Depth
	if width <= 0 {
		width = 128
	}
	if depth <= 0 {
		depth = 128
	}
	nodeSize := cfg.Grid.NodeSize
	if nodeSize <= 0 {
		nodeSize = 1
	}

	// Deterministic obstacle raster from the configured seed.
	rng := rand.New(rand.NewSource(cfg.Grid.Seed))
	blocked := make([]bool, width*depth)
	for i := range blocked {
		blocked[i] = rng.Float64() < cfg.Grid.ObstacleDensity
	}
	g := graph.NewGridGraph(e.NodeAllocator(), width, depth, nodeSize, types.Vector3{}, func(x, z int) bool {
		return blocked[z*width+x]
	})
	if err := e.AddGraph(g); err != nil {
		e.Destroy()
		return nil, nil, err
	}
	if err := e.Scan(); err != nil {
		e.Destroy()
		return nil, nil, err
	}
	return e, g, nil
}

func randomWalkablePos(rng *rand.Rand, g *graph.GridGraph) types.Vector3 {
	for {
		x, z := rng.Intn(g.Width()), rng.Intn(g.Depth())
		if n := g.NodeAtCell(x, z); n != nil && n.Walkable() {
			return n.Position()
		}
	}
}

// ============================================================================
// run
// ============================================================================

func runSystem(rate int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
		go func() {
			addr := cfg.Metrics.Port
			fmt.Printf("Serving metrics on http://localhost:%d/metrics\n", addr)
			if err := metrics.StartServer(addr); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
	}

	e, g, err := buildWorld(cfg, collector)
	if err != nil {
		return err
	}
	defer e.Destroy()

	fmt.Printf("World ready: %dx%d grid, issuing %d requests/s\n", g.Width(), g.Depth(), rate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var completed, errored atomic.Int64

	interval := time.Second / time.Duration(max(rate, 1))
	nextRequest := time.Now()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-sigCh:
			fmt.Printf("\nShutting down: %d completed, %d errored in %s\n",
				completed.Load(), errored.Load(), time.Since(start).Round(time.Second))
			return nil
		case <-ticker.C:
			for !time.Now().Before(nextRequest) {
				nextRequest = nextRequest.Add(interval)
				p := search.NewPath(randomWalkablePos(rng, g), randomWalkablePos(rng, g), func(p *search.Path) {
					if p.Errored() {
						errored.Add(1)
					} else {
						completed.Add(1)
					}
				})
				if err := e.StartPath(p, false); err != nil {
					return fmt.Errorf("engine stopped accepting paths: %w", err)
				}
			}
			e.Tick()
		}
	}
}

// ============================================================================
// bench
// ============================================================================

func runBench(count, inflight int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	e, g, err := buildWorld(cfg, nil)
	if err != nil {
		return err
	}
	defer e.Destroy()

	rng := rand.New(rand.NewSource(cfg.Grid.Seed + 1))
	latencies := make([]time.Duration, 0, count)
	errored := 0

	started, finished := 0, 0
	begin := time.Now()
	for finished < count {
		for started < count && started-finished < inflight {
			issued := time.Now()
			p := search.NewPath(randomWalkablePos(rng, g), randomWalkablePos(rng, g), func(p *search.Path) {
				latencies = append(latencies, time.Since(issued))
				if p.Errored() {
					errored++
				}
				finished++
			})
			if err := e.StartPath(p, false); err != nil {
				return err
			}
			started++
		}
		e.Tick()
	}
	total := time.Since(begin)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	pct := func(q float64) time.Duration {
		return latencies[int(float64(len(latencies)-1)*q)]
	}
	fmt.Printf("Requests:   %d (%d errored)\n", count, errored)
	fmt.Printf("Throughput: %.0f paths/s\n", float64(count)/total.Seconds())
	fmt.Printf("Latency:    p50=%s p95=%s p99=%s max=%s\n",
		pct(0.50), pct(0.95), pct(0.99), latencies[len(latencies)-1])
	return nil
}
