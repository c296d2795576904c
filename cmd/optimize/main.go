// Package main provides CMA-ES optimization of flock parameters for an
// ordered, steady flock.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/flock/config"
)

// EvalRecord is one row of the optimization log.
type EvalRecord struct {
	Eval               int     `csv:"eval"`
	Fitness            float64 `csv:"fitness"`
	Quality            float64 `csv:"quality"`
	Polarization       float64 `csv:"polarization"`
	PerceptionRadius   float64 `csv:"perception_radius"`
	SeparationDistance float64 `csv:"separation_distance"`
	MaxSpeed           float64 `csv:"max_speed"`
}

func newEvalRecord(eval int, fitness, quality, order float64, params []float64) EvalRecord {
	return EvalRecord{
		Eval:               eval,
		Fitness:            fitness,
		Quality:            quality,
		Polarization:       order,
		PerceptionRadius:   params[0],
		SeparationDistance: params[1],
		MaxSpeed:           params[2],
	}
}

// formatDuration formats a duration as 1h02m03s or 2m03s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

type options struct {
	configPath string
	maxTicks   int64
	seeds      int
	maxEvals   int
	population int
	count      int
	outputDir  string
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search flock parameters for an ordered, steady flock",
		Long: `optimize runs CMA-ES over perception radius, separation distance and
speed. Each candidate is scored by running headless simulations on several
seeds and measuring late-run polarization, its steadiness and neighbor counts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	f.Int64Var(&opts.maxTicks, "max-ticks", 3000, "Ticks per simulation run")
	f.IntVar(&opts.seeds, "seeds", 3, "Number of seeds per evaluation")
	f.IntVar(&opts.maxEvals, "max-evals", 200, "Maximum number of evaluations")
	f.IntVar(&opts.population, "population", 0, "CMA-ES population size (0 = auto)")
	f.IntVar(&opts.count, "count", 0, "Flock size per run (0 = use config)")
	f.StringVar(&opts.outputDir, "output", "", "Output directory for results")
	_ = cmd.MarkFlagRequired("output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	baseCfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.count > 0 {
		baseCfg.Flock.Count = opts.count
		if err := baseCfg.Finalize(); err != nil {
			return err
		}
	}

	params := NewParamVector()

	evalSeeds := make([]int64, opts.seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	evaluator := NewFitnessEvaluator(params, opts.maxTicks, evalSeeds, baseCfg)

	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	popSize := opts.population
	if popSize == 0 {
		// 4 + floor(3 ln n)
		popSize = 4 + int(3*math.Log(float64(dim)))
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: opts.maxEvals,
		Concurrent:      0,
	}

	logPath := filepath.Join(opts.outputDir, "optimize_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()
	headerWritten := false

	evalCount := 0
	bestFitness := math.Inf(1)
	var bestParams []float64
	var evalErr error
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			clamped := params.Clamp(params.Denormalize(x))
			fitness, err := evaluator.Evaluate(ctx, clamped)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			rec := newEvalRecord(evalCount, fitness, evaluator.LastQuality(), evaluator.LastPolarization(), clamped)
			if err := appendRecord(logFile, rec, &headerWritten); err != nil {
				slog.Error("failed to write log row", "error", err)
			}

			elapsed := time.Since(startTime)
			avgPerEval := elapsed / time.Duration(evalCount)
			remaining := time.Duration(opts.maxEvals-evalCount) * avgPerEval
			fmt.Printf("Eval %d/%d: quality=%.3f polarization=%.3f (best=%.3f) | elapsed: %s, ETA: %s\n",
				evalCount, opts.maxEvals, evaluator.LastQuality(), evaluator.LastPolarization(), -bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	fmt.Printf("Starting CMA-ES optimization with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, opts.maxEvals)
	fmt.Printf("Seeds per evaluation: %d, ticks per run: %d\n", opts.seeds, opts.maxTicks)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	if evalErr != nil {
		slog.Warn("evaluation stopped", "error", evalErr)
	}

	if bestParams == nil {
		if result == nil {
			return fmt.Errorf("no evaluation completed: %w", evalErr)
		}
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best quality: %.4f\n", -bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	bestCfg := baseCfg.Clone()
	if err := params.ApplyToConfig(bestCfg, bestParams); err != nil {
		return err
	}
	configOutPath := filepath.Join(opts.outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		return fmt.Errorf("writing best config: %w", err)
	}
	fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	return nil
}

// appendRecord writes rec to f, with a header on the first call.
func appendRecord(f *os.File, rec EvalRecord, headerWritten *bool) error {
	rows := []EvalRecord{rec}
	if !*headerWritten {
		if err := gocsv.Marshal(rows, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(rows, f)
}
