package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/flock/components"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Ticks           int64   `csv:"ticks"`

	// Flock shape, sampled at window end
	Population   int     `csv:"population"`
	Polarization float64 `csv:"polarization"` // |mean Up|, 1 = all boids heading the same way
	CentroidX    float64 `csv:"centroid_x"`
	CentroidY    float64 `csv:"centroid_y"`
	CentroidZ    float64 `csv:"centroid_z"`
	SpreadMean   float64 `csv:"spread_mean"` // distance from centroid
	SpreadStd    float64 `csv:"spread_std"`
	SpreadP10    float64 `csv:"spread_p10"`
	SpreadP50    float64 `csv:"spread_p50"`
	SpreadP90    float64 `csv:"spread_p90"`

	// Averaged over the window
	MeanNeighbors float64 `csv:"mean_neighbors"`

	// Events during window
	AlignmentFallbacks  int `csv:"alignment_fallbacks"`
	CohesionFallbacks   int `csv:"cohesion_fallbacks"`
	SeparationFallbacks int `csv:"separation_fallbacks"`
	LookFallbacks       int `csv:"look_fallbacks"`
	Wraps               int `csv:"wraps"`
}

// Percentile returns the p-th quantile of a sorted slice, interpolating
// linearly over the empirical distribution. p is clamped to [0, 1].
// Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(min(max(p, 0), 1), stat.LinInterp, sorted, nil)
}

// Polarization returns the length of the mean Up over the flock: 1 when every
// boid travels the same way, near 0 when headings are disordered.
func Polarization(flock []components.Boid) float64 {
	if len(flock) == 0 {
		return 0
	}
	var sum r3.Vec
	for i := range flock {
		sum = r3.Add(sum, flock[i].Transform.Heading.Up)
	}
	return r3.Norm(sum) / float64(len(flock))
}

// Centroid returns the mean position of the flock, ignoring wrap.
func Centroid(flock []components.Boid) r3.Vec {
	if len(flock) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for i := range flock {
		sum = r3.Add(sum, flock[i].Transform.Position)
	}
	return r3.Scale(1/float64(len(flock)), sum)
}

// ComputeSpreadStats calculates mean, std, and percentiles of the given
// distances.
func ComputeSpreadStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}
	if n == 1 {
		return values[0], 0, values[0], values[0], values[0]
	}

	mean, std = stat.MeanStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// fillFlock samples the flock shape into s.
func (s *WindowStats) fillFlock(flock []components.Boid) {
	s.Population = len(flock)
	if len(flock) == 0 {
		return
	}

	s.Polarization = Polarization(flock)
	c := Centroid(flock)
	s.CentroidX, s.CentroidY, s.CentroidZ = c.X, c.Y, c.Z

	dists := make([]float64, len(flock))
	for i := range flock {
		dists[i] = r3.Norm(r3.Sub(flock[i].Transform.Position, c))
	}
	s.SpreadMean, s.SpreadStd, s.SpreadP10, s.SpreadP50, s.SpreadP90 = ComputeSpreadStats(dists)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("population", s.Population),
		slog.Float64("polarization", s.Polarization),
		slog.Float64("centroid_x", s.CentroidX),
		slog.Float64("centroid_y", s.CentroidY),
		slog.Float64("centroid_z", s.CentroidZ),
		slog.Float64("spread_mean", s.SpreadMean),
		slog.Float64("spread_p50", s.SpreadP50),
		slog.Float64("mean_neighbors", s.MeanNeighbors),
		slog.Int("alignment_fallbacks", s.AlignmentFallbacks),
		slog.Int("cohesion_fallbacks", s.CohesionFallbacks),
		slog.Int("separation_fallbacks", s.SeparationFallbacks),
		slog.Int("look_fallbacks", s.LookFallbacks),
		slog.Int("wraps", s.Wraps),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"population", s.Population,
		"polarization", s.Polarization,
		"spread_mean", s.SpreadMean,
		"spread_p10", s.SpreadP10,
		"spread_p50", s.SpreadP50,
		"spread_p90", s.SpreadP90,
		"mean_neighbors", s.MeanNeighbors,
		"alignment_fallbacks", s.AlignmentFallbacks,
		"cohesion_fallbacks", s.CohesionFallbacks,
		"separation_fallbacks", s.SeparationFallbacks,
		"look_fallbacks", s.LookFallbacks,
		"wraps", s.Wraps,
	)
}
