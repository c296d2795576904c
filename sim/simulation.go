// Package sim runs the flock: it owns the boids and advances them one tick
// at a time with a two-phase steering and integration step.
package sim

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/flock/components"
	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// StepStats summarizes one call to Step.
type StepStats struct {
	Tick int64   // tick number after the step, starting at 1
	DT   float64 // seconds advanced
	telemetry.TickCounts
}

// Simulation holds the complete flock state.
type Simulation struct {
	cfg    *config.Config
	store  *Store
	bounds systems.Bounds
	index  systems.NeighborIndex

	separationMode systems.SeparationMode
	integrate      systems.IntegrateOptions

	parallel *parallelState
	perf     *telemetry.PerfCollector

	tick    int64
	simTime float64
}

// New creates a simulation with a freshly spawned flock.
func New(cfg *config.Config, rng RandomSource) (*Simulation, error) {
	bounds, err := systems.NewBounds(cfg.World.Width, cfg.World.Height, cfg.World.Depth)
	if err != nil {
		return nil, fmt.Errorf("world bounds: %w", err)
	}
	boids, err := Spawn(cfg, bounds, rng)
	if err != nil {
		return nil, err
	}
	return NewWithBoids(cfg, boids)
}

// NewWithBoids creates a simulation over an existing flock. The simulation
// takes ownership of boids.
func NewWithBoids(cfg *config.Config, boids []components.Boid) (*Simulation, error) {
	bounds, err := systems.NewBounds(cfg.World.Width, cfg.World.Height, cfg.World.Depth)
	if err != nil {
		return nil, fmt.Errorf("world bounds: %w", err)
	}

	cellSize := cfg.Derived.GridCellSize
	if cellSize <= 0 {
		cellSize = max(cfg.Flock.PerceptionRadius, cfg.Separation.Distance)
	}
	index, err := systems.NewNeighborIndex(cfg.Flock.NeighborIndex, bounds, cellSize)
	if err != nil {
		return nil, fmt.Errorf("neighbor index: %w", err)
	}

	mode, err := systems.ParseSeparationMode(cfg.Separation.Mode)
	if err != nil {
		return nil, fmt.Errorf("separation: %w", err)
	}

	return &Simulation{
		cfg:            cfg,
		store:          NewStore(boids),
		bounds:         bounds,
		index:          index,
		separationMode: mode,
		integrate:      systems.IntegrateOptions{ClampFraction: cfg.Integrator.ClampFraction},
		parallel:       newParallelState(len(boids), cfg.Parallel.Workers),
		perf:           telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
	}, nil
}

// Restore creates a simulation that resumes from snap.
func Restore(cfg *config.Config, snap *telemetry.Snapshot) (*Simulation, error) {
	world := [3]float64{cfg.World.Width, cfg.World.Height, cfg.World.Depth}
	if snap.World != world {
		return nil, fmt.Errorf("snapshot world %v does not match config world %v", snap.World, world)
	}
	s, err := NewWithBoids(cfg, telemetry.BoidsFromStates(snap.Boids))
	if err != nil {
		return nil, err
	}
	s.tick = snap.Tick
	s.simTime = snap.SimTime
	return s, nil
}

// Step advances the flock by dt seconds.
//
// All boids steer against the pre-tick state before any boid moves:
// phase 1 computes every boid's new desired directions into scratch space,
// phase 2 commits them and integrates each boid.
func (s *Simulation) Step(dt float64) StepStats {
	n := s.store.Len()
	p := s.parallel

	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseNeighborIndex)
	p.positions = s.store.Positions(p.positions[:0])
	s.index.Rebuild(p.positions)

	s.perf.StartPhase(telemetry.PhaseSteering)
	p.run(n, s.steerChunk)

	s.perf.StartPhase(telemetry.PhaseIntegrate)
	p.run(n, func(i0, i1 int, _ *workerScratch) {
		s.integrateChunk(i0, i1, dt)
	})

	s.perf.EndTick()

	s.tick++
	s.simTime += dt

	stats := StepStats{Tick: s.tick, DT: dt, TickCounts: p.counts()}
	if stats.Fallbacks() > 0 {
		slog.Debug("degenerate directions",
			"tick", stats.Tick,
			"alignment", stats.AlignmentFallbacks,
			"cohesion", stats.CohesionFallbacks,
			"separation", stats.SeparationFallbacks,
			"look", stats.LookFallbacks,
		)
	}
	return stats
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int64 { return s.tick }

// Time returns the simulated seconds elapsed.
func (s *Simulation) Time() float64 { return s.simTime }

// Store returns the flock. Callers outside Step must treat it as read-only.
func (s *Simulation) Store() *Store { return s.store }

// Bounds returns the world box.
func (s *Simulation) Bounds() systems.Bounds { return s.bounds }

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Perf returns the step timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Snapshot captures the complete flock state.
func (s *Simulation) Snapshot(runID string, seed int64) *telemetry.Snapshot {
	size := s.bounds.Size()
	boids := s.store.All()
	states := make([]telemetry.BoidState, len(boids))
	for i, b := range boids {
		states[i] = telemetry.NewBoidState(b)
	}
	return &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		RunID:   runID,
		Seed:    seed,
		World:   [3]float64{size.X, size.Y, size.Z},
		Tick:    s.tick,
		SimTime: s.simTime,
		Boids:   states,
	}
}
