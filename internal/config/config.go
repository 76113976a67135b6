// Package config holds all organism configuration, loaded from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full organism configuration.
type Config struct {
	DBPath string `yaml:"db_path"`

	Inference InferenceConfig `yaml:"inference"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Policy    PolicyConfig    `yaml:"policy"`
	Plastic   PlasticConfig   `yaml:"plasticity"`
	Gating    GatingConfig    `yaml:"gating"`
	Rollback  RollbackConfig  `yaml:"rollback"`
	Organs    OrganConfig     `yaml:"organs"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Axioms are the organism's four weighted goal statements, keyed a1..a4.
	Axioms map[string]string `yaml:"axioms"`
}

// InferenceConfig configures the external model boundary.
type InferenceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// HeartbeatConfig configures the tick loop.
type HeartbeatConfig struct {
	Decay         float64       `yaml:"decay"`
	ClipLo        float64       `yaml:"clip_lo"`
	ClipHi        float64       `yaml:"clip_hi"`
	SnapshotEvery int           `yaml:"snapshot_every"`
	TickInterval  time.Duration `yaml:"tick_interval"`
}

// PolicyConfig configures the policy kernel updates.
type PolicyConfig struct {
	Eta          float64 `yaml:"eta"`
	L2Decay      float64 `yaml:"l2_decay"`
	MaxAbs       float64 `yaml:"max_abs"`
	FrobeniusCap float64 `yaml:"frobenius_cap"`
}

// PlasticConfig configures generic operator learning.
type PlasticConfig struct {
	Eta          float64 `yaml:"eta"`
	TopK         int     `yaml:"top_k"`
	L2Decay      float64 `yaml:"l2_decay"`
	MaxAbs       float64 `yaml:"max_abs"`
	FrobeniusCap float64 `yaml:"frobenius_cap"`
}

// GateConfig configures one organ's gate.
type GateConfig struct {
	ForcedThreshold float64       `yaml:"forced_threshold"`
	MinInterval     time.Duration `yaml:"min_interval"`
}

// GatingConfig configures action scheduling.
type GatingConfig struct {
	Seed     int64      `yaml:"seed"` // 0 seeds from the clock at startup
	Websense GateConfig `yaml:"websense"`
	Daydream GateConfig `yaml:"daydream"`
	Evolve   GateConfig `yaml:"evolve"`
	Autotalk GateConfig `yaml:"autotalk"`
}

// RollbackConfig configures the regression valve.
type RollbackConfig struct {
	RewardFloor  float64       `yaml:"reward_floor"`
	PainMargin   float64       `yaml:"pain_margin"`
	RevertWindow time.Duration `yaml:"revert_window"`
}

// OrganConfig configures organ invocation.
type OrganConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	EnergyCostPerSec  float64       `yaml:"energy_cost_per_sec"`
	FatigueGainPerSec float64       `yaml:"fatigue_gain_per_sec"`
	StressGainPerSec  float64       `yaml:"stress_gain_per_sec"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		DBPath: "organism.db",
		Inference: InferenceConfig{
			BaseURL: "http://localhost:11434/api",
			Model:   "llama3.1",
			Timeout: 45 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Decay:         0.995,
			ClipLo:        0.0,
			ClipHi:        1.0,
			SnapshotEvery: 25,
			TickInterval:  30 * time.Second,
		},
		Policy: PolicyConfig{
			Eta:          0.05,
			L2Decay:      0.001,
			MaxAbs:       2.0,
			FrobeniusCap: 6.0,
		},
		Plastic: PlasticConfig{
			Eta:          0.10,
			TopK:         12,
			L2Decay:      0.002,
			MaxAbs:       2.0,
			FrobeniusCap: 5.0,
		},
		Gating: GatingConfig{
			Websense: GateConfig{ForcedThreshold: 0.75, MinInterval: 2 * time.Minute},
			Daydream: GateConfig{ForcedThreshold: 0.45, MinInterval: 5 * time.Minute},
			Evolve:   GateConfig{ForcedThreshold: 0.80, MinInterval: 15 * time.Minute},
			Autotalk: GateConfig{ForcedThreshold: 0.70, MinInterval: 10 * time.Minute},
		},
		Rollback: RollbackConfig{
			RewardFloor:  0.15,
			PainMargin:   0.12,
			RevertWindow: 5 * time.Minute,
		},
		Organs: OrganConfig{
			Timeout:           45 * time.Second,
			EnergyCostPerSec:  0.004,
			FatigueGainPerSec: 0.002,
			StressGainPerSec:  0.001,
		},
		Server:  ServerConfig{Addr: ":8640"},
		Logging: LoggingConfig{Debug: false},
		Axioms: map[string]string{
			"a1": "be helpful to the people you talk with",
			"a2": "keep your model of the world truthful",
			"a3": "stay curious about what you do not know",
			"a4": "conserve your own energy and stability",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies env
// overrides. A missing file is not an error: defaults plus env apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers ORGANISM_* environment overrides onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("ORGANISM_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("ORGANISM_INFERENCE_URL"); v != "" {
		c.Inference.BaseURL = v
	}
	if v := os.Getenv("ORGANISM_MODEL"); v != "" {
		c.Inference.Model = v
	}
	if v := os.Getenv("ORGANISM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ORGANISM_DEBUG"); v != "" {
		c.Logging.Debug = v == "true" || v == "1"
	}
	if v := os.Getenv("ORGANISM_GATING_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Gating.Seed = n
		}
	}
}
