package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/flock/config"
)

// RunMeta identifies one simulation run.
type RunMeta struct {
	ID          string    `yaml:"id"`
	Seed        int64     `yaml:"seed"`
	Fingerprint string    `yaml:"config_fingerprint"` // hex xxhash of the effective config
	Population  int       `yaml:"population"`
	StartedAt   time.Time `yaml:"started_at"`
}

// NewRunMeta returns metadata for a run of cfg seeded with seed.
func NewRunMeta(cfg *config.Config, seed int64) (RunMeta, error) {
	fp, err := cfg.Fingerprint()
	if err != nil {
		return RunMeta{}, err
	}
	return RunMeta{
		ID:          uuid.NewString(),
		Seed:        seed,
		Fingerprint: fmt.Sprintf("%016x", fp),
		Population:  cfg.Flock.Count,
		StartedAt:   time.Now().UTC(),
	}, nil
}
