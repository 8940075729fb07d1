// Package config loads and validates the orchestrator configuration.
//
// Sources are layered: built-in defaults, then an optional YAML file, then
// CYCLED_* environment variables (double underscore separates nesting, e.g.
// CYCLED_RECURSION__MAX_DEPTH=2).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/cycled/internal/cycle"
	"github.com/fyrsmithlabs/cycled/internal/logging"
	"github.com/fyrsmithlabs/cycled/internal/telemetry"
)

const envPrefix = "CYCLED_"

// ThresholdsConfig mirrors the termination heuristic thresholds.
type ThresholdsConfig struct {
	Granularity        float64 `koanf:"granularity"`
	CostBenefit        float64 `koanf:"cost_benefit"`
	Quality            float64 `koanf:"quality"`
	Resource           float64 `koanf:"resource"`
	Complexity         float64 `koanf:"complexity"`
	Convergence        float64 `koanf:"convergence"`
	DiminishingReturns float64 `koanf:"diminishing_returns"`
}

// RecursionConfig bounds micro-cycle creation.
type RecursionConfig struct {
	MaxDepth   int              `koanf:"max_depth"`
	Thresholds ThresholdsConfig `koanf:"thresholds"`
}

// TransitionsConfig controls the phase transition engine.
type TransitionsConfig struct {
	Auto              bool               `koanf:"auto"`
	Timeout           time.Duration      `koanf:"timeout"`
	QualityThresholds map[string]float64 `koanf:"quality_thresholds"`
}

// AggregationConfig toggles result aggregation behavior.
type AggregationConfig struct {
	MergeSimilar        bool `koanf:"merge_similar"`
	PrioritizeByQuality bool `koanf:"prioritize_by_quality"`
	HandleConflicts     bool `koanf:"handle_conflicts"`
}

// Config is the full orchestrator configuration.
type Config struct {
	Logging     logging.Config    `koanf:"logging"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
	Recursion   RecursionConfig   `koanf:"recursion"`
	Transitions TransitionsConfig `koanf:"transitions"`
	Aggregation AggregationConfig `koanf:"aggregation"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging:   logging.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Recursion: RecursionConfig{
			MaxDepth: cycle.DefaultMaxDepth,
			Thresholds: ThresholdsConfig{
				Granularity:        0.2,
				CostBenefit:        0.5,
				Quality:            0.9,
				Resource:           0.8,
				Complexity:         0.8,
				Convergence:        0.9,
				DiminishingReturns: 0.2,
			},
		},
		Transitions: TransitionsConfig{
			Auto:    true,
			Timeout: time.Hour,
		},
		Aggregation: AggregationConfig{
			MergeSimilar:        true,
			PrioritizeByQuality: true,
			HandleConflicts:     true,
		},
	}
}

// Load reads configuration from path (optional, "" skips the file) and the
// environment, layered over defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		data = b
	}
	return load(data)
}

// LoadBytes parses configuration from raw YAML, layered over defaults and
// under the environment.
func LoadBytes(data []byte) (*Config, error) {
	return load(data)
}

func load(data []byte) (*Config, error) {
	k := koanf.New(".")

	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// max_depth accepts sloppy input: non-numeric or non-positive values fall
	// back to the default, oversized values clamp to the hard cap.
	cfg.Recursion.MaxDepth = SanitizePositiveInt(
		k.Get("recursion.max_depth"), cycle.DefaultMaxDepth, cycle.DepthHardCap)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "cycled"
	}
	if c.Transitions.Timeout <= 0 {
		c.Transitions.Timeout = time.Hour
	}

	def := Default().Recursion.Thresholds
	t := &c.Recursion.Thresholds
	if t.Granularity == 0 {
		t.Granularity = def.Granularity
	}
	if t.CostBenefit == 0 {
		t.CostBenefit = def.CostBenefit
	}
	if t.Quality == 0 {
		t.Quality = def.Quality
	}
	if t.Resource == 0 {
		t.Resource = def.Resource
	}
	if t.Complexity == 0 {
		t.Complexity = def.Complexity
	}
	if t.Convergence == 0 {
		t.Convergence = def.Convergence
	}
	if t.DiminishingReturns == 0 {
		t.DiminishingReturns = def.DiminishingReturns
	}
}

// Validate rejects configurations the orchestrator cannot honor.
func (c *Config) Validate() error {
	t := c.Recursion.Thresholds
	for name, v := range map[string]float64{
		"granularity":         t.Granularity,
		"cost_benefit":        t.CostBenefit,
		"quality":             t.Quality,
		"resource":            t.Resource,
		"complexity":          t.Complexity,
		"convergence":         t.Convergence,
		"diminishing_returns": t.DiminishingReturns,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("recursion threshold %s must be in [0, 1], got %v", name, v)
		}
	}
	for phase, v := range c.Transitions.QualityThresholds {
		if _, err := cycle.ParsePhase(phase); err != nil {
			return fmt.Errorf("transitions.quality_thresholds: %w", err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("quality threshold for %s must be in [0, 1], got %v", phase, v)
		}
	}
	return nil
}

// CycleOptions maps the configuration onto coordinator options.
func (c *Config) CycleOptions() cycle.Options {
	opts := cycle.DefaultOptions()
	opts.MaxRecursionDepth = c.Recursion.MaxDepth
	opts.Thresholds = cycle.Thresholds{
		Granularity:        c.Recursion.Thresholds.Granularity,
		CostBenefit:        c.Recursion.Thresholds.CostBenefit,
		Quality:            c.Recursion.Thresholds.Quality,
		Resource:           c.Recursion.Thresholds.Resource,
		Complexity:         c.Recursion.Thresholds.Complexity,
		Convergence:        c.Recursion.Thresholds.Convergence,
		DiminishingReturns: c.Recursion.Thresholds.DiminishingReturns,
	}
	opts.AutoPhaseTransitions = c.Transitions.Auto
	opts.PhaseTransitionTimeout = c.Transitions.Timeout
	if len(c.Transitions.QualityThresholds) > 0 {
		opts.QualityThresholds = make(map[cycle.Phase]float64, len(c.Transitions.QualityThresholds))
		for name, v := range c.Transitions.QualityThresholds {
			phase, err := cycle.ParsePhase(name)
			if err != nil {
				continue
			}
			opts.QualityThresholds[phase] = v
		}
	}
	opts.MergeSimilar = c.Aggregation.MergeSimilar
	opts.PrioritizeByQuality = c.Aggregation.PrioritizeByQuality
	opts.HandleConflicts = c.Aggregation.HandleConflicts
	return opts
}
