package sim

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
)

// Store owns the flock. Its length is fixed at construction and a boid's
// identity is its index.
type Store struct {
	boids []components.Boid
}

// NewStore takes ownership of boids.
func NewStore(boids []components.Boid) *Store {
	return &Store{boids: boids}
}

// Len returns the number of boids.
func (s *Store) Len() int {
	return len(s.boids)
}

// All returns every boid. Callers must not modify the result.
func (s *Store) All() []components.Boid {
	return s.boids
}

// At returns a copy of boid i.
func (s *Store) At(i int) components.Boid {
	return s.boids[i]
}

// SetSteering replaces the desired directions of boid i.
func (s *Store) SetSteering(i int, st components.Steering) {
	s.boids[i].Steering = st
}

// Transform returns boid i's transform for in-place updates.
func (s *Store) Transform(i int) *components.Transform {
	return &s.boids[i].Transform
}

// Positions appends the position of every boid, in index order, to dst.
func (s *Store) Positions(dst []r3.Vec) []r3.Vec {
	for i := range s.boids {
		dst = append(dst, s.boids[i].Transform.Position)
	}
	return dst
}

func (s *Store) ref(i int) *components.Boid {
	return &s.boids[i]
}
