package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/sim"
	"github.com/pthm-cable/flock/stream"
	"github.com/pthm-cable/flock/telemetry"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	seed        int64
	maxTicks    int64
	realtime    bool
	logStats    bool
	outputDir   string
	dbPath      string
	serveAddr   string
	frameEvery  int64
	snapshotDir string
	resume      string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation",
		Long: `Run the flock headless with a fixed time step, or paced in realtime.

Examples:
  flock run --max-ticks 6000 --output-dir out/run1
  flock run --realtime --serve :8080
  flock run --resume out/snapshots/snapshot_3000.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), config.Cfg(), opts)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&opts.seed, "seed", 0, "RNG seed (0 = time-based)")
	f.Int64Var(&opts.maxTicks, "max-ticks", 0, "Stop after N ticks (0 = until interrupted)")
	f.BoolVar(&opts.realtime, "realtime", false, "Pace ticks at physics.target_fps using wall-clock deltas")
	f.BoolVar(&opts.logStats, "log-stats", false, "Log every telemetry window")
	f.StringVar(&opts.outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	f.StringVar(&opts.dbPath, "db", "", "SQLite database for telemetry (empty = disabled)")
	f.StringVar(&opts.serveAddr, "serve", "", "Serve frames over websocket at this address (overrides stream.addr)")
	f.Int64Var(&opts.frameEvery, "frame-every", 1, "Publish a frame every N ticks")
	f.StringVar(&opts.snapshotDir, "snapshot-dir", "", "Directory for bookmark and final snapshots")
	f.StringVar(&opts.resume, "resume", "", "Resume from a snapshot file")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, opts runOptions) error {
	s, seed, err := buildSimulation(cfg, opts)
	if err != nil {
		return err
	}

	meta, err := telemetry.NewRunMeta(cfg, seed)
	if err != nil {
		return fmt.Errorf("run metadata: %w", err)
	}
	meta.Population = s.Store().Len()

	sink, err := openSinks(ctx, cfg, meta, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("failed to close telemetry sinks", "error", err)
		}
	}()

	rec := sim.NewRecorder(s, sim.RecorderOptions{
		Sink:        sink,
		LogStats:    opts.logStats,
		SnapshotDir: opts.snapshotDir,
		Meta:        meta,
	})

	runner := &sim.Runner{
		Sim:      s,
		Clock:    sim.FixedClock(cfg.Physics.DT),
		MaxTicks: opts.maxTicks,
		Hooks:    []sim.TickHook{rec.Hook},
	}
	if opts.realtime {
		runner.Clock = sim.NewWallClock(4 * cfg.Physics.DT)
		if cfg.Physics.TargetFPS > 0 {
			runner.Interval = time.Second / time.Duration(cfg.Physics.TargetFPS)
		}
	}

	addr := cfg.Stream.Addr
	if opts.serveAddr != "" {
		addr = opts.serveAddr
	}
	var feed *stream.Feed
	if addr != "" {
		feed = stream.NewFeed(cfg.Stream.Buffer)
		runner.Hooks = append(runner.Hooks, feed.Hook(opts.frameEvery))
	}

	slog.Info("run starting", "run_id", meta.ID, "seed", seed, "config_fingerprint", meta.Fingerprint)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if feed != nil {
		g.Go(func() error { return feed.ListenAndServe(gctx, addr) })
	}
	g.Go(func() error {
		defer cancel()
		err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if opts.snapshotDir != "" {
		path, err := telemetry.SaveSnapshot(s.Snapshot(meta.ID, seed), opts.snapshotDir)
		if err != nil {
			return fmt.Errorf("saving final snapshot: %w", err)
		}
		slog.Info("final snapshot saved", "path", path)
	}

	slog.Info("run finished",
		"tick", s.Tick(),
		"sim_time", s.Time(),
		"windows", len(rec.Windows()),
		"bookmarks", len(rec.Bookmarks()),
	)
	return nil
}

// buildSimulation spawns a fresh flock or resumes one from a snapshot.
func buildSimulation(cfg *config.Config, opts runOptions) (*sim.Simulation, int64, error) {
	if opts.resume != "" {
		snap, err := telemetry.LoadSnapshot(opts.resume)
		if err != nil {
			return nil, 0, err
		}
		s, err := sim.Restore(cfg, snap)
		if err != nil {
			return nil, 0, err
		}
		slog.Info("resumed from snapshot", "path", opts.resume, "tick", snap.Tick, "run_id", snap.RunID)
		seed := snap.Seed
		if opts.seed != 0 {
			seed = opts.seed
		}
		return s, seed, nil
	}

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s, err := sim.New(cfg, sim.NewRandomSource(seed))
	if err != nil {
		return nil, 0, err
	}
	return s, seed, nil
}

// openSinks opens every telemetry sink requested by opts.
func openSinks(ctx context.Context, cfg *config.Config, meta telemetry.RunMeta, opts runOptions) (telemetry.MultiSink, error) {
	var sinks telemetry.MultiSink

	out, err := telemetry.NewOutputManager(opts.outputDir)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := out.WriteConfig(cfg); err != nil {
			out.Close()
			return nil, fmt.Errorf("writing config: %w", err)
		}
		if err := out.WriteMeta(meta); err != nil {
			out.Close()
			return nil, err
		}
		sinks = append(sinks, out)
	}

	if opts.dbPath != "" {
		db, err := telemetry.OpenSQLiteSink(ctx, opts.dbPath, meta)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}
