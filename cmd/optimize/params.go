package main

import (
	"github.com/pthm-cable/flock/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // column name in the log
	Path    string  // config key it maps to
	Min     float64 // lower bound
	Max     float64 // upper bound
	Default float64
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "perception_radius", Path: "flock.perception_radius", Min: 4, Max: 30, Default: 20},
			{Name: "separation_distance", Path: "separation.distance", Min: 1, Max: 20, Default: 10},
			// initial_speed follows max_speed
			{Name: "max_speed", Path: "flock.max_speed", Min: 2, Max: 20, Default: 10},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig clamps values and writes them into cfg, then refreshes the
// derived config.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) error {
	clamped := pv.Clamp(values)

	// Order must match Specs.
	cfg.Flock.PerceptionRadius = clamped[0]
	cfg.Separation.Distance = clamped[1]
	cfg.Flock.MaxSpeed = clamped[2]
	cfg.Flock.InitialSpeed = clamped[2]

	return cfg.Finalize()
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Flock.PerceptionRadius,
		cfg.Separation.Distance,
		cfg.Flock.MaxSpeed,
	}
}
