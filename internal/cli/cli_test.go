package cli

// ============================================================================
// CLI Test File
// Purpose: Verify config parsing, thread-count resolution and world wiring
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NeonPandaSp/wayfinder/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
engine:
  thread_count: "2"
  max_frame_time_ms: 3
  min_area_size: 4
  batch_graph_updates: true
  graph_update_batching_interval_ms: 150
nearest:
  max_nearest_node_distance: 42.5
  prioritize_graphs: true
  prioritize_graphs_limit: 2.5
grid:
  width: 16
  depth: 16
  node_size: 1.0
  obstacle_density: 0.1
  seed: 7
metrics:
  enabled: false
  port: 9090
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadConfig verifies YAML mapping.
func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "2", cfg.Engine.ThreadCount)
	assert.Equal(t, 3, cfg.Engine.MaxFrameTimeMs)
	assert.Equal(t, 4, cfg.Engine.MinAreaSize)
	assert.Equal(t, 150, cfg.Engine.GraphUpdateBatchingIntervalMs)
	assert.Equal(t, 42.5, cfg.Nearest.MaxNearestNodeDistance)
	assert.True(t, cfg.Nearest.PrioritizeGraphs)
	assert.Equal(t, 16, cfg.Grid.Width)
	assert.Equal(t, int64(7), cfg.Grid.Seed)
	assert.False(t, cfg.Metrics.Enabled)
}

// TestLoadConfigMissing verifies a readable error for a bad path.
func TestLoadConfigMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

// TestResolveThreadCount verifies the auto/none/number forms.
func TestResolveThreadCount(t *testing.T) {
	n, err := resolveThreadCount("auto")
	require.NoError(t, err)
	assert.Equal(t, engine.WorkersAuto, n)

	n, err = resolveThreadCount("")
	require.NoError(t, err)
	assert.Equal(t, engine.WorkersAuto, n)

	n, err = resolveThreadCount("none")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = resolveThreadCount("4")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = resolveThreadCount("-3")
	assert.Error(t, err)
	_, err = resolveThreadCount("many")
	assert.Error(t, err)
}

// TestEngineConfigMapping verifies config values land in the engine config.
func TestEngineConfigMapping(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	ec, err := engineConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ec.WorkerCount)
	assert.Equal(t, 3*time.Millisecond, ec.MaxFrameTime)
	assert.Equal(t, 4, ec.MinAreaSize)
	assert.Equal(t, 150*time.Millisecond, ec.GraphUpdateBatchingInterval)
	assert.Equal(t, 42.5, ec.MaxNearestNodeDistance)
	assert.True(t, ec.PrioritizeGraphs)
	assert.Equal(t, 2.5, ec.PrioritizeGraphsLimit)
}

// TestBuildWorld verifies the demo world comes up scanned and usable.
func TestBuildWorld(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	e, g, err := buildWorld(cfg, nil)
	require.NoError(t, err)
	defer e.Destroy()

	assert.Equal(t, 16, g.Width())
	assert.Equal(t, 256, g.NodeCount())

	info := e.GetNearest(g.NodeAtCell(1, 1).Position(), nil)
	assert.NotNil(t, info.Node)
}

// TestBuildCLI verifies the command tree shape.
func TestBuildCLI(t *testing.T) {
	root := BuildCLI()
	assert.Equal(t, "wayfinder", root.Use)

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["bench"])
}
