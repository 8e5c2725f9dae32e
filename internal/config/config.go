// Package config loads the YAML description of a training session.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cnclabs/trafficvol/internal/trainer"
	"github.com/cnclabs/trafficvol/pkg/metrics"
	"github.com/cnclabs/trafficvol/pkg/yearly"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("config: invalid")

// Config is the top-level session configuration
type Config struct {
	DataDir   string `yaml:"data_dir"`
	StateName string `yaml:"state_name"`

	TrainYears []int `yaml:"train_years"`
	ValidYears []int `yaml:"valid_years"`
	TestYears  []int `yaml:"test_years"`

	Epochs     int      `yaml:"epochs"`
	BatchSize  int      `yaml:"batch_size"`
	EvalSteps  int      `yaml:"eval_steps"`
	LogMetrics []string `yaml:"log_metrics"`

	UseDynamicNodeFeatures bool      `yaml:"use_dynamic_node_features"`
	NodeFeatureMean        []float64 `yaml:"node_feature_mean"`
	NodeFeatureStd         []float64 `yaml:"node_feature_std"`

	Device    string `yaml:"device"`
	Seed      int64  `yaml:"seed"`
	CacheSize int    `yaml:"cache_size"`

	Model ModelConfig `yaml:"model"`
	Store StoreConfig `yaml:"store"`

	// Save is where the trained predictor is written, empty to skip
	Save string `yaml:"save"`
}

// ModelConfig controls the encoder, predictor and optimizer
type ModelConfig struct {
	Hops        int     `yaml:"hops"`
	Hidden      int     `yaml:"hidden"`
	Optimizer   string  `yaml:"optimizer"` // adam | sgd
	LR          float64 `yaml:"lr"`
	WeightDecay float64 `yaml:"weight_decay"`
}

// StoreConfig selects the run store. An empty DSN disables it.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

// Default returns the configuration used for keys a file leaves out
func Default() *Config {
	return &Config{
		DataDir:   "data",
		Epochs:    100,
		BatchSize: 128,
		EvalSteps: 5,
		Device:    "cpu",
		Seed:      1,
		CacheSize: yearly.DefaultCacheSize,
		Model: ModelConfig{
			Hops:      2,
			Hidden:    64,
			Optimizer: "adam",
			LR:        0.01,
		},
		Store: StoreConfig{Driver: "sqlite"},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting
func (c *Config) Validate() error {
	switch {
	case c.StateName == "":
		return fmt.Errorf("%w: state_name is required", ErrInvalid)
	case len(c.TrainYears) == 0:
		return fmt.Errorf("%w: train_years is empty", ErrInvalid)
	case len(c.ValidYears) == 0:
		return fmt.Errorf("%w: valid_years is empty", ErrInvalid)
	case len(c.TestYears) == 0:
		return fmt.Errorf("%w: test_years is empty", ErrInvalid)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive", ErrInvalid)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalid)
	case c.EvalSteps <= 0:
		return fmt.Errorf("%w: eval_steps must be positive", ErrInvalid)
	case c.CacheSize <= 0:
		return fmt.Errorf("%w: cache_size must be positive", ErrInvalid)
	case c.Model.Hops < 0:
		return fmt.Errorf("%w: model.hops must not be negative", ErrInvalid)
	case c.Model.Hidden <= 0:
		return fmt.Errorf("%w: model.hidden must be positive", ErrInvalid)
	case c.Model.LR <= 0:
		return fmt.Errorf("%w: model.lr must be positive", ErrInvalid)
	}

	switch c.Model.Optimizer {
	case "", "adam", "sgd":
	default:
		return fmt.Errorf("%w: unknown optimizer %q", ErrInvalid, c.Model.Optimizer)
	}

	for _, name := range c.LogMetrics {
		if !metrics.IsReported(name) {
			return fmt.Errorf("%w: log_metrics: unknown metric %q, want one of %v", ErrInvalid, name, metrics.Reported())
		}
	}

	if c.Store.DSN != "" {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
		}
	}

	if stats := c.FeatureStats(); stats != nil {
		if err := stats.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// FeatureStats returns the precomputed statistics, nil when the file has none
func (c *Config) FeatureStats() *trainer.FeatureStats {
	if len(c.NodeFeatureMean) == 0 && len(c.NodeFeatureStd) == 0 {
		return nil
	}
	return &trainer.FeatureStats{Mean: c.NodeFeatureMean, Std: c.NodeFeatureStd}
}

// Options maps the session settings onto trainer options. Output, logger,
// metric and hook are left for the caller.
func (c *Config) Options() trainer.Options {
	return trainer.Options{
		TrainYears:             c.TrainYears,
		ValidYears:             c.ValidYears,
		TestYears:              c.TestYears,
		Epochs:                 c.Epochs,
		BatchSize:              c.BatchSize,
		EvalSteps:              c.EvalSteps,
		LogMetrics:             c.LogMetrics,
		UseDynamicNodeFeatures: c.UseDynamicNodeFeatures,
		Stats:                  c.FeatureStats(),
		Device:                 c.Device,
		Seed:                   c.Seed,
	}
}
