package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "organism.db", cfg.DBPath)
	assert.Equal(t, 0.995, cfg.Heartbeat.Decay)
	assert.Equal(t, 0.0, cfg.Heartbeat.ClipLo)
	assert.Equal(t, 1.0, cfg.Heartbeat.ClipHi)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.TickInterval)
	assert.Equal(t, 0.05, cfg.Policy.Eta)
	assert.Equal(t, 12, cfg.Plastic.TopK)
	assert.Equal(t, 0.15, cfg.Rollback.RewardFloor)
	assert.Equal(t, 5*time.Minute, cfg.Rollback.RevertWindow)
	assert.Equal(t, ":8640", cfg.Server.Addr)
	assert.Len(t, cfg.Axioms, 4)
	assert.Zero(t, cfg.Gating.Seed)
}

func TestLoadMissingFileIsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Heartbeat, cfg.Heartbeat)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "organism.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/organism/state.db
heartbeat:
  decay: 0.99
  tick_interval: 10s
gating:
  seed: 42
  evolve:
    forced_threshold: 0.9
axioms:
  a1: "one"
  a2: "two"
  a3: "three"
  a4: "four"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/organism/state.db", cfg.DBPath)
	assert.Equal(t, 0.99, cfg.Heartbeat.Decay)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.TickInterval)
	assert.Equal(t, int64(42), cfg.Gating.Seed)
	assert.Equal(t, 0.9, cfg.Gating.Evolve.ForcedThreshold)
	// Untouched fields keep their defaults.
	assert.Equal(t, 25, cfg.Heartbeat.SnapshotEvery)
	assert.Equal(t, 2*time.Minute, cfg.Gating.Websense.MinInterval)
	assert.Equal(t, "one", cfg.Axioms["a1"])
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{::not yaml::"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORGANISM_DB", "/tmp/env.db")
	t.Setenv("ORGANISM_INFERENCE_URL", "http://inference:9999/api")
	t.Setenv("ORGANISM_MODEL", "qwen2.5")
	t.Setenv("ORGANISM_ADDR", ":9000")
	t.Setenv("ORGANISM_DEBUG", "1")
	t.Setenv("ORGANISM_GATING_SEED", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "http://inference:9999/api", cfg.Inference.BaseURL)
	assert.Equal(t, "qwen2.5", cfg.Inference.Model)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.True(t, cfg.Logging.Debug)
	assert.Equal(t, int64(7), cfg.Gating.Seed)
}

func TestEnvSeedIgnoresGarbage(t *testing.T) {
	t.Setenv("ORGANISM_GATING_SEED", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Gating.Seed)
}
