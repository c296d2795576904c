package sim

import (
	"context"
	"log/slog"
	"time"
)

// TickHook is called after every step on the goroutine running the
// simulation, so it may read the flock directly.
type TickHook func(s *Simulation, stats StepStats)

// Runner drives a Simulation until its tick budget is spent or its context
// is cancelled.
type Runner struct {
	Sim   *Simulation
	Clock Clock

	// MaxTicks stops the run after this many steps; 0 runs until cancelled.
	MaxTicks int64

	// Interval paces steps in realtime runs; 0 steps as fast as possible.
	Interval time.Duration

	Hooks []TickHook
}

// Run steps the simulation. It returns nil when MaxTicks is reached and the
// context's error when cancelled.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("simulation starting",
		"boids", r.Sim.Store().Len(),
		"tick", r.Sim.Tick(),
		"max_ticks", r.MaxTicks,
		"interval", r.Interval,
	)

	var pace <-chan time.Time
	if r.Interval > 0 {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	for n := int64(0); r.MaxTicks == 0 || n < r.MaxTicks; n++ {
		if pace != nil {
			select {
			case <-ctx.Done():
				return r.stopped(ctx.Err())
			case <-pace:
			}
		} else if err := ctx.Err(); err != nil {
			return r.stopped(err)
		}

		stats := r.Sim.Step(r.Clock.Delta())
		for _, h := range r.Hooks {
			h(r.Sim, stats)
		}
	}

	slog.Info("max ticks reached", "tick", r.Sim.Tick(), "sim_time", r.Sim.Time())
	return nil
}

func (r *Runner) stopped(err error) error {
	slog.Info("simulation stopped", "tick", r.Sim.Tick(), "reason", err)
	return err
}
