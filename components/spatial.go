package components

import "gonum.org/v1/gonum/spatial/r3"

// Heading is an orthonormal pair of directions.
// Boids travel along Up; Forward only fixes the roll around it.
type Heading struct {
	Forward r3.Vec
	Up      r3.Vec
}

// Transform is an entity's placement in world space.
type Transform struct {
	Position r3.Vec
	Heading  Heading
}
