package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the complete flock state for resuming a run.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	Seed    int64  `json:"seed"`

	World [3]float64 `json:"world"` // width, height, depth

	Tick    int64   `json:"tick"`
	SimTime float64 `json:"sim_time"`

	Boids []BoidState `json:"boids"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// BoidState holds one boid's complete state.
type BoidState struct {
	Position   [3]float64 `json:"position"`
	Forward    [3]float64 `json:"forward"`
	Up         [3]float64 `json:"up"`
	MaxSpeed   float64    `json:"max_speed"`
	Speed      float64    `json:"speed"`
	Perception float64    `json:"perception"`
	Alignment  [3]float64 `json:"alignment"`
	Cohesion   [3]float64 `json:"cohesion"`
	Separation [3]float64 `json:"separation"`
}

func vecArray(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func arrayVec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// NewBoidState captures b.
func NewBoidState(b components.Boid) BoidState {
	return BoidState{
		Position:   vecArray(b.Transform.Position),
		Forward:    vecArray(b.Transform.Heading.Forward),
		Up:         vecArray(b.Transform.Heading.Up),
		MaxSpeed:   b.Speed.Max,
		Speed:      b.Speed.Current,
		Perception: b.Perception.Radius,
		Alignment:  vecArray(b.Steering.Alignment),
		Cohesion:   vecArray(b.Steering.Cohesion),
		Separation: vecArray(b.Steering.Separation),
	}
}

// Boid converts the state back into a boid record.
func (s BoidState) Boid() components.Boid {
	return components.Boid{
		Transform: components.Transform{
			Position: arrayVec(s.Position),
			Heading:  components.Heading{Forward: arrayVec(s.Forward), Up: arrayVec(s.Up)},
		},
		Speed:      components.Speed{Max: s.MaxSpeed, Current: s.Speed},
		Perception: components.Perception{Radius: s.Perception},
		Steering: components.Steering{
			Alignment:  arrayVec(s.Alignment),
			Cohesion:   arrayVec(s.Cohesion),
			Separation: arrayVec(s.Separation),
		},
	}
}

// BoidsFromStates converts every state into a boid record.
func BoidsFromStates(states []BoidState) []components.Boid {
	out := make([]components.Boid, len(states))
	for i, s := range states {
		out[i] = s.Boid()
	}
	return out
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	return &snapshot, nil
}
