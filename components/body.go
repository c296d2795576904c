package components

// Speed holds the scalar speeds of a boid in world units per second.
type Speed struct {
	Max     float64 // upper bound for Current
	Current float64 // velocity magnitude; velocity is Current * Heading.Up
}

// Perception holds the neighborhood radius used by alignment and cohesion.
type Perception struct {
	Radius float64
}
