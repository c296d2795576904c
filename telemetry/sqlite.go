package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    seed INTEGER NOT NULL,
    config_fingerprint TEXT NOT NULL,
    population INTEGER NOT NULL,
    started_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS windows (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    window_end INTEGER NOT NULL,
    sim_time REAL NOT NULL,
    ticks INTEGER NOT NULL,
    population INTEGER NOT NULL,
    polarization REAL NOT NULL,
    centroid_x REAL NOT NULL,
    centroid_y REAL NOT NULL,
    centroid_z REAL NOT NULL,
    spread_mean REAL NOT NULL,
    spread_std REAL NOT NULL,
    spread_p10 REAL NOT NULL,
    spread_p50 REAL NOT NULL,
    spread_p90 REAL NOT NULL,
    mean_neighbors REAL NOT NULL,
    alignment_fallbacks INTEGER NOT NULL,
    cohesion_fallbacks INTEGER NOT NULL,
    separation_fallbacks INTEGER NOT NULL,
    look_fallbacks INTEGER NOT NULL,
    wraps INTEGER NOT NULL,
    PRIMARY KEY (run_id, window_end)
);

CREATE TABLE IF NOT EXISTS perf (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    window_end INTEGER NOT NULL,
    avg_tick_us INTEGER NOT NULL,
    min_tick_us INTEGER NOT NULL,
    max_tick_us INTEGER NOT NULL,
    ticks_per_sec REAL NOT NULL,
    neighbor_index_pct REAL NOT NULL,
    steering_pct REAL NOT NULL,
    integrate_pct REAL NOT NULL,
    PRIMARY KEY (run_id, window_end)
);
`

// SQLiteSink stores telemetry windows of one or more runs in a SQLite database.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

// OpenSQLiteSink opens (creating if needed) the database at path and
// registers meta as the run every subsequent write belongs to.
func OpenSQLiteSink(ctx context.Context, path string, meta RunMeta) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (id, seed, config_fingerprint, population, started_at) VALUES (?, ?, ?, ?, ?)`,
		meta.ID, meta.Seed, meta.Fingerprint, meta.Population, meta.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recording run: %w", err)
	}

	return &SQLiteSink{db: db, runID: meta.ID}, nil
}

// RunID returns the run this sink writes to.
func (s *SQLiteSink) RunID() string {
	return s.runID
}

// WriteTelemetry implements Sink.
func (s *SQLiteSink) WriteTelemetry(w WindowStats) error {
	_, err := s.db.Exec(`INSERT INTO windows (
        run_id, window_end, sim_time, ticks, population, polarization,
        centroid_x, centroid_y, centroid_z,
        spread_mean, spread_std, spread_p10, spread_p50, spread_p90,
        mean_neighbors, alignment_fallbacks, cohesion_fallbacks,
        separation_fallbacks, look_fallbacks, wraps
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, w.WindowEndTick, w.SimTimeSec, w.Ticks, w.Population, w.Polarization,
		w.CentroidX, w.CentroidY, w.CentroidZ,
		w.SpreadMean, w.SpreadStd, w.SpreadP10, w.SpreadP50, w.SpreadP90,
		w.MeanNeighbors, w.AlignmentFallbacks, w.CohesionFallbacks,
		w.SeparationFallbacks, w.LookFallbacks, w.Wraps,
	)
	if err != nil {
		return fmt.Errorf("inserting window %d: %w", w.WindowEndTick, err)
	}
	return nil
}

// WritePerf implements Sink.
func (s *SQLiteSink) WritePerf(stats PerfStats, windowEnd int64) error {
	r := stats.ToCSV(windowEnd)
	_, err := s.db.Exec(`INSERT INTO perf (
        run_id, window_end, avg_tick_us, min_tick_us, max_tick_us, ticks_per_sec,
        neighbor_index_pct, steering_pct, integrate_pct
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, r.WindowEnd, r.AvgTickUS, r.MinTickUS, r.MaxTickUS, r.TicksPerSec,
		r.NeighborIndexPct, r.SteeringPct, r.IntegratePct,
	)
	if err != nil {
		return fmt.Errorf("inserting perf %d: %w", windowEnd, err)
	}
	return nil
}

// Polarization returns the recorded polarization series of the run, ordered
// by window end.
func (s *SQLiteSink) Polarization(ctx context.Context) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT polarization FROM windows WHERE run_id = ? ORDER BY window_end`, s.runID)
	if err != nil {
		return nil, fmt.Errorf("querying windows: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning window: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
