// Package config assembles every component's configuration from defaults, an
// optional YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-cascade/internal/cascade"
	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/exclusion"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
	"github.com/danielpatrickdp/adaptive-cascade/internal/trajectory"
)

// #region types

// StorageConfig locates persistent state.
type StorageConfig struct {
	Database       string `yaml:"database"`        // sqlite file for exemplars and the sqlite pattern backend
	PatternBackend string `yaml:"pattern_backend"` // memory | file | sqlite | badger
	PatternPath    string `yaml:"pattern_path"`    // file or badger dir; sqlite uses Database when empty
	LedgerDSN      string `yaml:"ledger_dsn"`      // sqlite path or postgres:// DSN; empty disables the ledger
}

// PatternLocation returns where the pattern backend persists.
func (s StorageConfig) PatternLocation() string {
	if s.PatternPath == "" && s.PatternBackend == "sqlite" {
		return s.Database
	}
	return s.PatternPath
}

// UpstreamConfig points at the embedding and knowledge service.
type UpstreamConfig struct {
	Addr      string `yaml:"addr"`
	Dimension int    `yaml:"dimension"`
	Knowledge bool   `yaml:"knowledge"`  // enable the knowledge bypass
	TimeoutMS int    `yaml:"timeout_ms"` // per-turn CLI timeout; 0 disables
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Config is the full application configuration.
type Config struct {
	Detector   detector.Config     `yaml:"detector"`
	Exclusion  exclusion.Config    `yaml:"exclusion"`
	Cascade    cascade.Config      `yaml:"cascade"`
	Pattern    pattern.Config      `yaml:"pattern"`
	Trajectory trajectory.Config   `yaml:"trajectory"`
	Phrases    *cascade.PhraseBook `yaml:"phrases,omitempty"`

	Storage  StorageConfig  `yaml:"storage"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// #endregion types

// #region defaults

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Detector:   detector.DefaultConfig(),
		Exclusion:  exclusion.DefaultConfig(),
		Cascade:    cascade.DefaultConfig(),
		Pattern:    pattern.DefaultConfig(),
		Trajectory: trajectory.DefaultConfig(),
		Storage: StorageConfig{
			Database:       "adaptive_cascade.db",
			PatternBackend: "sqlite",
		},
		Upstream: UpstreamConfig{
			Addr:      "localhost:50051",
			Dimension: 384,
			TimeoutMS: 10000,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults, applies environment overrides and
// validates. A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CASCADE_DB"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv("CODEC_ADDR"); v != "" {
		c.Upstream.Addr = v
	}
	if v := os.Getenv("CASCADE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PATTERN_BACKEND"); v != "" {
		c.Storage.PatternBackend = v
	}
	if v := os.Getenv("LEDGER_DSN"); v != "" {
		c.Storage.LedgerDSN = v
	}
	if v := os.Getenv("EMBED_DIM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMBED_DIM: %w", err)
		}
		c.Upstream.Dimension = n
	}
	return nil
}

// #endregion load

// #region validate

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	d := c.Detector
	check(d.Temperature > 0, "detector.temperature must be positive, got %v", d.Temperature)
	check(d.ExemplarCap > 0, "detector.exemplar_cap must be positive, got %d", d.ExemplarCap)
	check(unit(d.MaxLearnedWeight), "detector.max_learned_weight must be in [0,1], got %v", d.MaxLearnedWeight)
	check(unit(d.ActivationThreshold), "detector.activation_threshold must be in [0,1], got %v", d.ActivationThreshold)
	check(d.TopK > 0, "detector.top_k must be positive, got %d", d.TopK)
	for _, spec := range []detector.Spec{d.State, d.Capacity, d.Category} {
		check(len(spec.Seeds) >= 2, "detector %q needs at least two labels", spec.Name)
		for _, label := range spec.Labels() {
			check(keyName(label), "detector %q label %q cannot be used in pattern keys", spec.Name, label)
		}
	}

	e := c.Exclusion
	check(e.StateWeight >= 0 && e.CategoryWeight >= 0 && e.DistanceWeight >= 0, "exclusion weights must be non-negative")
	check(e.StateWeight+e.CategoryWeight+e.DistanceWeight > 0, "exclusion weights must not all be zero")
	check(unit(e.DangerThreshold) && unit(e.SafeThreshold), "exclusion thresholds must be in [0,1]")
	check(e.SafeThreshold <= e.DangerThreshold, "exclusion.safe_threshold %v exceeds danger_threshold %v", e.SafeThreshold, e.DangerThreshold)
	check(len(e.DistanceBands) > 0, "exclusion.distance_bands must not be empty")

	g := c.Cascade
	check(unit(g.CoherenceThreshold) && unit(g.CapacityThreshold), "cascade gate thresholds must be in [0,1]")
	check(g.BucketLow <= g.BucketHigh, "cascade.bucket_low %v exceeds bucket_high %v", g.BucketLow, g.BucketHigh)
	check(g.MediumTier <= g.HighTier, "cascade.medium_tier %v exceeds high_tier %v", g.MediumTier, g.HighTier)

	p := c.Pattern
	check(p.LearningRate > 0 && p.LearningRate <= 1, "pattern.learning_rate must be in (0,1], got %v", p.LearningRate)
	check(p.DecayRate > 0 && p.DecayRate <= 1, "pattern.decay_rate must be in (0,1], got %v", p.DecayRate)
	check(p.MinAdjustment <= 0 && p.MaxAdjustment >= 0, "pattern adjustment bounds must straddle zero")
	check(p.SaveEvery >= 0, "pattern.save_every must not be negative")
	check(keyName(p.CrisisCategory), "pattern.crisis_category %q cannot be used in pattern keys", p.CrisisCategory)
	check(keyName(g.DefaultCategory), "cascade.default_category %q cannot be used in pattern keys", g.DefaultCategory)

	t := c.Trajectory
	check(t.MinSamples >= 2, "trajectory.min_samples must be at least 2, got %d", t.MinSamples)
	check(t.Window >= t.MinSamples, "trajectory.window %d is smaller than min_samples %d", t.Window, t.MinSamples)

	switch c.Storage.PatternBackend {
	case "memory", "file", "sqlite", "badger":
	default:
		errs = append(errs, fmt.Errorf("storage.pattern_backend %q is not one of memory, file, sqlite, badger", c.Storage.PatternBackend))
	}
	check(c.Upstream.Dimension > 0, "upstream.dimension must be positive")
	check(c.Upstream.TimeoutMS >= 0, "upstream.timeout_ms must not be negative")
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	check(c.Logging.Format == "json" || c.Logging.Format == "console", "logging.format must be json or console, got %q", c.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// keyName reports whether a label survives the persisted key encoding.
func keyName(s string) bool {
	return s != "" && s != pattern.AnySubLabel && !strings.Contains(s, pattern.KeySeparator)
}

// #endregion validate
