package systems

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
)

// SeparationMode selects which boids the separation rule pushes away from.
type SeparationMode uint8

const (
	// SeparationNear considers boids at or within the separation distance.
	SeparationNear SeparationMode = iota
	// SeparationBeyond considers boids at or beyond the separation distance.
	SeparationBeyond
)

// ParseSeparationMode parses "near" or "beyond". Empty means near.
func ParseSeparationMode(s string) (SeparationMode, error) {
	switch s {
	case "near", "":
		return SeparationNear, nil
	case "beyond":
		return SeparationBeyond, nil
	default:
		return 0, fmt.Errorf("unknown separation mode %q", s)
	}
}

// String returns the config name of the mode.
func (m SeparationMode) String() string {
	if m == SeparationBeyond {
		return "beyond"
	}
	return "near"
}

// SteerResult is the output of one steering rule for one boid.
type SteerResult struct {
	Dir      r3.Vec // new desired direction (unit)
	Count    int    // neighbors that contributed
	Fallback bool   // the aggregate was degenerate and Dir is a fallback
}

// Alignment steers towards the average Up of the neighbors.
// With no neighbors the previous direction is kept. A degenerate average
// (headings that cancel out) falls back to the boid's own Up.
func Alignment(self components.Boid, neighbors []Neighbor, flock []components.Boid) SteerResult {
	prev := self.Steering.Alignment
	if len(neighbors) == 0 {
		return SteerResult{Dir: prev}
	}

	var sum r3.Vec
	for _, n := range neighbors {
		sum = r3.Add(sum, flock[n.Index].Transform.Heading.Up)
	}
	dir, err := TryNormalize(r3.Scale(1/float64(len(neighbors)), sum))
	if err != nil {
		return SteerResult{Dir: self.Transform.Heading.Up, Count: len(neighbors), Fallback: true}
	}
	return SteerResult{Dir: dir, Count: len(neighbors)}
}

// Cohesion steers along the average position of the neighbors.
// The average itself is normalized, not its offset from the boid, so the
// result points at the local centre only for boids near the origin.
// With no neighbors, or a degenerate average, the previous direction is kept.
func Cohesion(self components.Boid, neighbors []Neighbor, flock []components.Boid) SteerResult {
	prev := self.Steering.Cohesion
	if len(neighbors) == 0 {
		return SteerResult{Dir: prev}
	}

	var sum r3.Vec
	for _, n := range neighbors {
		sum = r3.Add(sum, flock[n.Index].Transform.Position)
	}
	dir, err := TryNormalize(r3.Scale(1/float64(len(neighbors)), sum))
	if err != nil {
		return SteerResult{Dir: prev, Count: len(neighbors), Fallback: true}
	}
	return SteerResult{Dir: dir, Count: len(neighbors)}
}

// Separation steers along the negated average position of the candidates
// selected by SeparationCandidatesInto.
// With no candidates, or a degenerate average, the previous direction is kept.
func Separation(self components.Boid, candidates []Neighbor, flock []components.Boid) SteerResult {
	prev := self.Steering.Separation
	if len(candidates) == 0 {
		return SteerResult{Dir: prev}
	}

	var sum r3.Vec
	for _, n := range candidates {
		sum = r3.Sub(sum, flock[n.Index].Transform.Position)
	}
	dir, err := TryNormalize(r3.Scale(1/float64(len(candidates)), sum))
	if err != nil {
		return SteerResult{Dir: prev, Count: len(candidates), Fallback: true}
	}
	return SteerResult{Dir: dir, Count: len(candidates)}
}

// SeparationCandidatesInto appends the boids the separation rule considers
// for self. The distance test uses the fixed separation distance, never the
// boid's perception radius. Near mode goes through the index; beyond mode
// has to visit every boid.
func SeparationCandidatesInto(dst []Neighbor, index NeighborIndex, positions []r3.Vec, self int, distance float64, mode SeparationMode) []Neighbor {
	if mode == SeparationNear {
		return index.QueryRadiusInto(dst, self, distance)
	}

	origin := positions[self]
	distSq := distance * distance
	for i, p := range positions {
		if i == self {
			continue
		}
		if d := distanceSq(origin, p); d >= distSq {
			dst = append(dst, Neighbor{Index: i, DistSq: d})
		}
	}
	return dst
}
