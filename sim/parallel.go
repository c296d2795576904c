package sim

import (
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
	"github.com/pthm-cable/flock/systems"
	"github.com/pthm-cable/flock/telemetry"
)

// parallelThreshold is the minimum boid count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// boidOutcome records what happened to one boid during a tick.
// Each entry is written only by the worker that owns the boid.
type boidOutcome struct {
	neighbors          int
	alignmentFallback  bool
	cohesionFallback   bool
	separationFallback bool
	lookFallback       bool
	wrapped            bool
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	neighbors  []systems.Neighbor
	candidates []systems.Neighbor
}

// parallelState holds the per-tick buffers shared by the two phases.
type parallelState struct {
	positions []r3.Vec              // pre-tick positions, indexed
	steering  []components.Steering // phase 1 output, committed in phase 2
	outcomes  []boidOutcome
	scratches []workerScratch
	workers   int
}

func newParallelState(n, workers int) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].neighbors = make([]systems.Neighbor, 0, 64)
		scratches[i].candidates = make([]systems.Neighbor, 0, 64)
	}
	return &parallelState{
		positions: make([]r3.Vec, 0, n),
		steering:  make([]components.Steering, n),
		outcomes:  make([]boidOutcome, n),
		scratches: scratches,
		workers:   workers,
	}
}

// run calls fn over [0, n) split into one contiguous chunk per worker and
// returns once every chunk is done. Small flocks run on the calling goroutine.
func (p *parallelState) run(n int, fn func(i0, i1 int, scratch *workerScratch)) {
	if n == 0 {
		return
	}
	if n < parallelThreshold || p.workers == 1 {
		fn(0, n, &p.scratches[0])
		return
	}

	chunkSize := (n + p.workers - 1) / p.workers

	var g errgroup.Group
	for w := 0; w < p.workers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		scratch := &p.scratches[w]
		g.Go(func() error {
			fn(start, end, scratch)
			return nil
		})
	}
	// Workers never fail; Wait is the barrier between phases.
	_ = g.Wait()
}

// counts sums the outcomes of the last tick.
func (p *parallelState) counts() telemetry.TickCounts {
	var c telemetry.TickCounts
	for i := range p.outcomes {
		o := &p.outcomes[i]
		c.Neighbors += o.neighbors
		if o.alignmentFallback {
			c.AlignmentFallbacks++
		}
		if o.cohesionFallback {
			c.CohesionFallbacks++
		}
		if o.separationFallback {
			c.SeparationFallbacks++
		}
		if o.lookFallback {
			c.LookFallbacks++
		}
		if o.wrapped {
			c.Wraps++
		}
	}
	return c
}

// steerChunk runs the steering rules for boids [i0, i1). It reads the
// committed flock and the neighbor index and writes only the scratch
// steering and outcome entries of its own boids.
func (s *Simulation) steerChunk(i0, i1 int, scratch *workerScratch) {
	p := s.parallel
	flock := s.store.All()
	distance := s.cfg.Separation.Distance

	for i := i0; i < i1; i++ {
		self := flock[i]

		scratch.neighbors = s.index.QueryRadiusInto(scratch.neighbors[:0], i, self.Perception.Radius)
		align := systems.Alignment(self, scratch.neighbors, flock)
		coh := systems.Cohesion(self, scratch.neighbors, flock)

		scratch.candidates = systems.SeparationCandidatesInto(
			scratch.candidates[:0], s.index, p.positions, i, distance, s.separationMode,
		)
		sep := systems.Separation(self, scratch.candidates, flock)

		p.steering[i] = components.Steering{
			Alignment:  align.Dir,
			Cohesion:   coh.Dir,
			Separation: sep.Dir,
		}
		p.outcomes[i] = boidOutcome{
			neighbors:          len(scratch.neighbors),
			alignmentFallback:  align.Fallback,
			cohesionFallback:   coh.Fallback,
			separationFallback: sep.Fallback,
		}
	}
}

// integrateChunk commits the scratch steering of boids [i0, i1) and moves
// them. Each boid writes only itself.
func (s *Simulation) integrateChunk(i0, i1 int, dt float64) {
	p := s.parallel
	for i := i0; i < i1; i++ {
		s.store.SetSteering(i, p.steering[i])
		res := systems.Integrate(s.store.ref(i), dt, s.bounds, s.integrate)
		p.outcomes[i].lookFallback = res.LookFallback
		p.outcomes[i].wrapped = res.Wrapped
	}
}
