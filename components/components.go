// Package components defines the per-boid records of the simulation.
package components

import "gonum.org/v1/gonum/spatial/r3"

// Steering holds the desired directions produced by the steering rules.
// All three are unit vectors; a rule that cannot produce a direction
// leaves its previous value in place.
type Steering struct {
	Alignment  r3.Vec
	Cohesion   r3.Vec
	Separation r3.Vec
}

// NewSteering returns a Steering with every direction set to dir.
func NewSteering(dir r3.Vec) Steering {
	return Steering{Alignment: dir, Cohesion: dir, Separation: dir}
}

// Boid is the fixed-layout record for one agent.
// Its identity is its index in the owning store.
type Boid struct {
	Transform  Transform
	Speed      Speed
	Perception Perception
	Steering   Steering
}
