package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/flock/config"
)

// Sink receives flushed telemetry windows.
type Sink interface {
	WriteTelemetry(stats WindowStats) error
	WritePerf(stats PerfStats, windowEnd int64) error
	Close() error
}

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir           string
	telemetryFile *os.File
	perfFile      *os.File

	// Track if headers have been written
	telemetryHeaderWritten bool
	perfHeaderWritten      bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating telemetry.csv: %w", err)
	}
	om.telemetryFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.telemetryFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteMeta saves the run metadata as YAML.
func (om *OutputManager) WriteMeta(meta RunMeta) error {
	if om == nil {
		return nil
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling run meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "run.yaml"), data, 0644); err != nil {
		return fmt.Errorf("writing run.yaml: %w", err)
	}
	return nil
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := writeCSV(om.telemetryFile, []WindowStats{stats}, &om.telemetryHeaderWritten); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	if err := writeCSV(om.perfFile, []PerfStatsCSV{stats.ToCSV(windowEnd)}, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// writeCSV appends records to f, writing the header row on first use.
func writeCSV[T any](f *os.File, records []T, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var errs []error
	if om.telemetryFile != nil {
		errs = append(errs, om.telemetryFile.Close())
	}
	if om.perfFile != nil {
		errs = append(errs, om.perfFile.Close())
	}
	return errors.Join(errs...)
}

// MultiSink fans every write out to all of its sinks.
type MultiSink []Sink

// WriteTelemetry implements Sink.
func (m MultiSink) WriteTelemetry(stats WindowStats) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WriteTelemetry(stats))
	}
	return errors.Join(errs...)
}

// WritePerf implements Sink.
func (m MultiSink) WritePerf(stats PerfStats, windowEnd int64) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.WritePerf(stats, windowEnd))
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
