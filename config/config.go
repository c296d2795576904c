// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Flock      FlockConfig      `yaml:"flock"`
	Separation SeparationConfig `yaml:"separation"`
	Integrator IntegratorConfig `yaml:"integrator"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Parallel   ParallelConfig   `yaml:"parallel"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Stream     StreamConfig     `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds the dimensions of the box the flock wraps around in.
// The box is centered at the origin.
type WorldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Depth  float64 `yaml:"depth"`
}

// FlockConfig holds population and per-boid parameters.
type FlockConfig struct {
	Count            int     `yaml:"count"`
	PerceptionRadius float64 `yaml:"perception_radius"` // alignment/cohesion neighborhood
	MaxSpeed         float64 `yaml:"max_speed"`
	InitialSpeed     float64 `yaml:"initial_speed"`
	NeighborIndex    string  `yaml:"neighbor_index"` // grid | scan
}

// SeparationConfig holds the separation rule's fixed distance test.
type SeparationConfig struct {
	Distance float64 `yaml:"distance"`
	Mode     string  `yaml:"mode"` // near | beyond
}

// IntegratorConfig holds integrator options.
type IntegratorConfig struct {
	ClampFraction bool `yaml:"clamp_fraction"` // clamp the slerp weight (dt) to [0,1]
}

// PhysicsConfig holds timing parameters.
type PhysicsConfig struct {
	DT        float64 `yaml:"dt"`         // fixed tick for headless runs
	TargetFPS int     `yaml:"target_fps"` // pacing for realtime runs
}

// ParallelConfig holds worker settings for the steering and integration phases.
type ParallelConfig struct {
	Workers int `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds of simulated time per window
	PerfWindow  int     `yaml:"perf_window"`  // ticks in the rolling perf window
}

// StreamConfig holds frame feed parameters.
type StreamConfig struct {
	Addr   string `yaml:"addr"`   // listen address, empty = disabled
	Buffer int    `yaml:"buffer"` // frames queued per subscriber before dropping
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	GridCellSize float64 // largest query radius, so a query spans at most 3 cells per axis
}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize validates the config and recomputes derived values.
// Call it after changing fields of a loaded config.
func (c *Config) Finalize() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Validate checks the config for values the simulation cannot run with.
func (c *Config) Validate() error {
	w := c.World
	switch {
	case w.Width <= 0 || w.Height <= 0 || w.Depth <= 0:
		return fmt.Errorf("%w: world dimensions must be positive, got %gx%gx%g", ErrInvalid, w.Width, w.Height, w.Depth)
	case c.Flock.Count < 0:
		return fmt.Errorf("%w: flock.count must not be negative, got %d", ErrInvalid, c.Flock.Count)
	case c.Flock.PerceptionRadius <= 0:
		return fmt.Errorf("%w: flock.perception_radius must be positive, got %g", ErrInvalid, c.Flock.PerceptionRadius)
	case c.Flock.MaxSpeed < 0 || c.Flock.InitialSpeed < 0:
		return fmt.Errorf("%w: speeds must not be negative", ErrInvalid)
	case c.Flock.InitialSpeed > c.Flock.MaxSpeed:
		return fmt.Errorf("%w: flock.initial_speed %g exceeds flock.max_speed %g", ErrInvalid, c.Flock.InitialSpeed, c.Flock.MaxSpeed)
	case c.Separation.Distance <= 0:
		return fmt.Errorf("%w: separation.distance must be positive, got %g", ErrInvalid, c.Separation.Distance)
	case c.Physics.DT <= 0:
		return fmt.Errorf("%w: physics.dt must be positive, got %g", ErrInvalid, c.Physics.DT)
	case c.Parallel.Workers < 0:
		return fmt.Errorf("%w: parallel.workers must not be negative", ErrInvalid)
	case c.Telemetry.StatsWindow <= 0:
		return fmt.Errorf("%w: telemetry.stats_window must be positive, got %g", ErrInvalid, c.Telemetry.StatsWindow)
	case c.Telemetry.PerfWindow <= 0:
		return fmt.Errorf("%w: telemetry.perf_window must be positive, got %d", ErrInvalid, c.Telemetry.PerfWindow)
	case c.Stream.Buffer < 0:
		return fmt.Errorf("%w: stream.buffer must not be negative", ErrInvalid)
	}

	switch c.Flock.NeighborIndex {
	case "", "grid", "scan":
	default:
		return fmt.Errorf("%w: flock.neighbor_index must be grid or scan, got %q", ErrInvalid, c.Flock.NeighborIndex)
	}
	switch c.Separation.Mode {
	case "", "near", "beyond":
	default:
		return fmt.Errorf("%w: separation.mode must be near or beyond, got %q", ErrInvalid, c.Separation.Mode)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.GridCellSize = max(c.Flock.PerceptionRadius, c.Separation.Distance)
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Fingerprint returns a stable hash of the effective configuration, used to
// tell runs with identical parameters apart from ones that differ.
func (c *Config) Fingerprint() (uint64, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("marshaling config: %w", err)
	}
	return xxhash.Sum64(data), nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
