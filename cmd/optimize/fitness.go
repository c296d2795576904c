package main

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/sim"
	"github.com/pthm-cable/flock/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int64
	seeds      []int64
	baseConfig *config.Config

	mu          sync.Mutex
	lastQuality float64
	lastOrder   float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// LastPolarization returns the late-run polarization from the most recent
// evaluation.
func (fe *FitnessEvaluator) LastPolarization() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastOrder
}

type seedResult struct {
	quality      float64
	polarization float64
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Fitness is the negated quality averaged over all seeds.
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) (float64, error) {
	cfg := fe.baseConfig.Clone()
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		return 0, err
	}
	// Seeds already run in parallel.
	cfg.Parallel.Workers = 1

	results := make([]seedResult, len(fe.seeds))
	g, ctx := errgroup.WithContext(ctx)
	for i, seed := range fe.seeds {
		g.Go(func() error {
			windows, err := fe.runSimulation(ctx, cfg, seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			results[i] = seedResult{
				quality:      computeQuality(windows),
				polarization: latePolarization(windows),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var totalQuality, totalOrder float64
	for _, r := range results {
		totalQuality += r.quality
		totalOrder += r.polarization
	}
	n := float64(len(fe.seeds))

	fe.mu.Lock()
	fe.lastQuality = totalQuality / n
	fe.lastOrder = totalOrder / n
	fe.mu.Unlock()

	return -totalQuality / n, nil
}

// runSimulation executes a single headless run and returns its windows.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, cfg *config.Config, seed int64) ([]telemetry.WindowStats, error) {
	s, err := sim.New(cfg, sim.NewRandomSource(seed))
	if err != nil {
		return nil, err
	}
	rec := sim.NewRecorder(s, sim.RecorderOptions{})
	r := &sim.Runner{
		Sim:      s,
		Clock:    sim.FixedClock(cfg.Physics.DT),
		MaxTicks: fe.maxTicks,
		Hooks:    []sim.TickHook{rec.Hook},
	}
	if err := r.Run(ctx); err != nil {
		return nil, err
	}
	return rec.Windows(), nil
}

// Quality component weights.
const (
	qualityWeightOrder     = 0.6
	qualityWeightStability = 0.2
	qualityWeightNeighbors = 0.2

	qualityWarmupWindows = 2 // skip first N windows while the flock forms
	targetNeighbors      = 7 // neighbors per boid of a cohesive but uncrowded flock
)

// computeQuality scores a run in [0, 1] from its windows past warmup:
// mean polarization, steadiness of polarization, and how close the mean
// neighbor count is to targetNeighbors.
func computeQuality(windows []telemetry.WindowStats) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	order := make([]float64, len(valid))
	var neighborScore float64
	for i, w := range valid {
		order[i] = w.Polarization
		logErr := math.Log((w.MeanNeighbors + 1) / (targetNeighbors + 1))
		neighborScore += math.Exp(-logErr * logErr)
	}
	neighborScore /= float64(len(valid))

	mean, std := stat.MeanStdDev(order, nil)
	stability := 1.0
	if len(order) >= 2 {
		stability = math.Exp(-10 * std)
	}

	quality := qualityWeightOrder*mean +
		qualityWeightStability*stability +
		qualityWeightNeighbors*neighborScore

	return clamp01(quality)
}

// latePolarization averages polarization over the windows past warmup.
func latePolarization(windows []telemetry.WindowStats) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	var sum float64
	valid := windows[qualityWarmupWindows:]
	for _, w := range valid {
		sum += w.Polarization
	}
	return sum / float64(len(valid))
}

func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}
