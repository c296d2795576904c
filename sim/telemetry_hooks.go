package sim

import (
	"log/slog"

	"github.com/pthm-cable/flock/telemetry"
)

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Sink        telemetry.Sink // nil disables persistence
	LogStats    bool           // log each window and its perf stats
	SnapshotDir string         // save a snapshot on every bookmark; empty disables
	Meta        telemetry.RunMeta

	// OnWindow, if set, receives every flushed window.
	OnWindow func(telemetry.WindowStats)
}

// Recorder turns step results into telemetry windows, bookmarks and
// snapshots. Its Hook method is a TickHook.
type Recorder struct {
	opts      RecorderOptions
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector

	windows    []telemetry.WindowStats
	bookmarked []telemetry.Bookmark
}

// NewRecorder creates a recorder for s whose first window starts at the
// current tick and simulated time of s.
func NewRecorder(s *Simulation, opts RecorderOptions) *Recorder {
	c := telemetry.NewCollector(s.Config().Telemetry.StatsWindow)
	c.StartAt(s.Tick(), s.Time())
	return &Recorder{
		opts:      opts,
		collector: c,
		bookmarks: telemetry.NewBookmarkDetector(10),
	}
}

// Hook records stats and flushes the window once it is complete.
func (r *Recorder) Hook(s *Simulation, stats StepStats) {
	r.collector.RecordTick(stats.TickCounts)
	if !r.collector.ShouldFlush(s.Time()) {
		return
	}

	window := r.collector.Flush(stats.Tick, s.Time(), s.Store().All())
	perfStats := s.Perf().Stats()
	r.windows = append(r.windows, window)

	if r.opts.OnWindow != nil {
		r.opts.OnWindow(window)
	}

	if r.opts.LogStats {
		window.LogStats()
		perfStats.LogStats()
	}

	if r.opts.Sink != nil {
		if err := r.opts.Sink.WriteTelemetry(window); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := r.opts.Sink.WritePerf(perfStats, window.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range r.bookmarks.Check(window) {
		r.bookmarked = append(r.bookmarked, bm)
		if r.opts.LogStats {
			bm.LogBookmark()
		}
		if r.opts.SnapshotDir != "" {
			r.saveSnapshot(s, bm)
		}
	}
}

func (r *Recorder) saveSnapshot(s *Simulation, bm telemetry.Bookmark) {
	snap := s.Snapshot(r.opts.Meta.ID, r.opts.Meta.Seed)
	snap.Bookmark = &bm
	path, err := telemetry.SaveSnapshot(snap, r.opts.SnapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "bookmark", string(bm.Type))
}

// Windows returns every window flushed so far.
func (r *Recorder) Windows() []telemetry.WindowStats {
	return r.windows
}

// Bookmarks returns every bookmark triggered so far.
func (r *Recorder) Bookmarks() []telemetry.Bookmark {
	return r.bookmarked
}
