// Package telemetry provides flock statistics, performance tracking, bookmarking, and snapshots.
package telemetry

import "github.com/pthm-cable/flock/components"

// TickCounts are the per-tick event counts reported by one simulation step.
type TickCounts struct {
	Neighbors           int // perception neighbors summed over all boids
	AlignmentFallbacks  int
	CohesionFallbacks   int
	SeparationFallbacks int
	LookFallbacks       int // degenerate summed steering in the integrator
	Wraps               int // boids that crossed a face of the bounds
}

// Fallbacks returns the total number of degenerate directions in c.
func (c TickCounts) Fallbacks() int {
	return c.AlignmentFallbacks + c.CohesionFallbacks + c.SeparationFallbacks + c.LookFallbacks
}

// Add accumulates o into c.
func (c *TickCounts) Add(o TickCounts) {
	c.Neighbors += o.Neighbors
	c.AlignmentFallbacks += o.AlignmentFallbacks
	c.CohesionFallbacks += o.CohesionFallbacks
	c.SeparationFallbacks += o.SeparationFallbacks
	c.LookFallbacks += o.LookFallbacks
	c.Wraps += o.Wraps
}

// windowEpsilon absorbs the rounding of simulated time summed from many deltas.
const windowEpsilon = 1e-9

// Collector accumulates tick counts within windows of simulated time and
// produces WindowStats. Steps may have any dt, so a window is closed by the
// first tick whose simulated time reaches its duration.
type Collector struct {
	windowDuration float64

	windowStartTick int64
	windowStartTime float64
	ticks           int64
	counts          TickCounts
}

// NewCollector creates a new stats collector whose windows last
// windowDurationSec seconds of simulated time.
func NewCollector(windowDurationSec float64) *Collector {
	return &Collector{windowDuration: windowDurationSec}
}

// StartAt begins the first window at tick and simTime, for runs resumed from a snapshot.
func (c *Collector) StartAt(tick int64, simTime float64) {
	c.windowStartTick = tick
	c.windowStartTime = simTime
}

// RecordTick adds one tick's counts to the current window.
func (c *Collector) RecordTick(counts TickCounts) {
	c.counts.Add(counts)
	c.ticks++
}

// ShouldFlush returns true once the window spans its duration of simulated time.
func (c *Collector) ShouldFlush(simTime float64) bool {
	return c.ticks > 0 && simTime-c.windowStartTime >= c.windowDuration-windowEpsilon
}

// Flush produces a WindowStats from the accumulated counts and the flock
// state at currentTick and simTime, then resets counters for the next window.
func (c *Collector) Flush(currentTick int64, simTime float64, flock []components.Boid) WindowStats {
	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      simTime,
		Ticks:           c.ticks,

		AlignmentFallbacks:  c.counts.AlignmentFallbacks,
		CohesionFallbacks:   c.counts.CohesionFallbacks,
		SeparationFallbacks: c.counts.SeparationFallbacks,
		LookFallbacks:       c.counts.LookFallbacks,
		Wraps:               c.counts.Wraps,
	}
	if c.ticks > 0 && len(flock) > 0 {
		stats.MeanNeighbors = float64(c.counts.Neighbors) / float64(c.ticks) / float64(len(flock))
	}
	stats.fillFlock(flock)

	c.windowStartTick = currentTick
	c.windowStartTime = simTime
	c.ticks = 0
	c.counts = TickCounts{}

	return stats
}
