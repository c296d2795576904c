package sim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/systems"
)

// maxDirectionDraws bounds the rejection sampling of a spawn direction.
const maxDirectionDraws = 64

// ErrRandomExhausted is returned when the random source keeps producing
// unusable direction samples.
var ErrRandomExhausted = errors.New("random source produced no usable direction")

// Spawn creates cfg.Flock.Count boids with uniformly random positions inside
// bounds and uniformly random orientations.
func Spawn(cfg *config.Config, bounds systems.Bounds, rng RandomSource) ([]components.Boid, error) {
	half := bounds.Half()
	boids := make([]components.Boid, cfg.Flock.Count)
	for i := range boids {
		pos := r3.Vec{
			X: rng.Range(-half.X, half.X),
			Y: rng.Range(-half.Y, half.Y),
			Z: rng.Range(-half.Z, half.Z),
		}
		up, err := randomDirection(rng)
		if err != nil {
			return nil, fmt.Errorf("spawning boid %d: %w", i, err)
		}
		boids[i] = newBoid(cfg, pos, up)
	}
	return boids, nil
}

// newBoid creates a boid at pos travelling along up. Every desired direction
// starts out as up, so an isolated boid keeps flying straight.
func newBoid(cfg *config.Config, pos, up r3.Vec) components.Boid {
	return components.Boid{
		Transform: components.Transform{
			Position: pos,
			Heading:  systems.LookTo(systems.AnyOrthogonal(up), up),
		},
		Speed: components.Speed{
			Max:     cfg.Flock.MaxSpeed,
			Current: cfg.Flock.InitialSpeed,
		},
		Perception: components.Perception{Radius: cfg.Flock.PerceptionRadius},
		Steering:   components.NewSteering(up),
	}
}

// randomDirection samples a unit vector uniformly on the sphere by rejecting
// cube samples outside the unit ball or too short to normalize.
func randomDirection(rng RandomSource) (r3.Vec, error) {
	for range maxDirectionDraws {
		v := r3.Vec{X: rng.Range(-1, 1), Y: rng.Range(-1, 1), Z: rng.Range(-1, 1)}
		if r3.Norm2(v) > 1 {
			continue
		}
		if dir, err := systems.TryNormalize(v); err == nil {
			return dir, nil
		}
	}
	return r3.Vec{}, ErrRandomExhausted
}
