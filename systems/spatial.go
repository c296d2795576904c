// Package systems provides the flocking rules, the integrator and the
// spatial queries they run on.
package systems

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Neighbor is another boid found by a radius query.
type Neighbor struct {
	Index  int     // store index of the neighbor
	DistSq float64 // squared Euclidean distance to the query origin
}

// NeighborIndex answers radius queries over a snapshot of positions.
// Rebuild must not run concurrently with queries; queries may run
// concurrently with each other.
type NeighborIndex interface {
	// Rebuild replaces the indexed snapshot. positions is retained and must
	// not be modified until the next Rebuild.
	Rebuild(positions []r3.Vec)

	// QueryRadiusInto appends every indexed boid other than self whose
	// distance to self is <= radius, and returns the extended slice.
	QueryRadiusInto(dst []Neighbor, self int, radius float64) []Neighbor
}

// Index kinds accepted by NewNeighborIndex.
const (
	IndexScan = "scan"
	IndexGrid = "grid"
)

// NewNeighborIndex returns the index of the given kind covering bounds.
// cellSize is only used by the grid.
func NewNeighborIndex(kind string, bounds Bounds, cellSize float64) (NeighborIndex, error) {
	switch kind {
	case IndexScan:
		return &LinearScan{}, nil
	case IndexGrid, "":
		return NewSpatialGrid(bounds, cellSize)
	default:
		return nil, fmt.Errorf("unknown neighbor index %q", kind)
	}
}

// LinearScan checks every boid on every query. O(n) per query.
type LinearScan struct {
	positions []r3.Vec
}

// Rebuild implements NeighborIndex.
func (s *LinearScan) Rebuild(positions []r3.Vec) {
	s.positions = positions
}

// QueryRadiusInto implements NeighborIndex.
func (s *LinearScan) QueryRadiusInto(dst []Neighbor, self int, radius float64) []Neighbor {
	origin := s.positions[self]
	radiusSq := radius * radius
	for i, p := range s.positions {
		if i == self {
			continue
		}
		if d := distanceSq(origin, p); d <= radiusSq {
			dst = append(dst, Neighbor{Index: i, DistSq: d})
		}
	}
	return dst
}

// SpatialGrid buckets boids into uniform cubic cells so a query only
// visits the cells overlapping its radius. It returns the same set as
// LinearScan.
type SpatialGrid struct {
	cellSize float64
	min      r3.Vec
	cols     int
	rows     int
	layers   int
	cells    [][]int // flat grid of store indices

	positions []r3.Vec
}

// NewSpatialGrid creates a grid covering bounds.
func NewSpatialGrid(bounds Bounds, cellSize float64) (*SpatialGrid, error) {
	if cellSize <= 0 {
		return nil, fmt.Errorf("grid cell size must be positive, got %g", cellSize)
	}
	size := bounds.Size()
	cols := int(size.X/cellSize) + 1
	rows := int(size.Y/cellSize) + 1
	layers := int(size.Z/cellSize) + 1

	cells := make([][]int, cols*rows*layers)
	for i := range cells {
		cells[i] = make([]int, 0, 8)
	}

	return &SpatialGrid{
		cellSize: cellSize,
		min:      bounds.Box().Min,
		cols:     cols,
		rows:     rows,
		layers:   layers,
		cells:    cells,
	}, nil
}

// Rebuild implements NeighborIndex.
func (g *SpatialGrid) Rebuild(positions []r3.Vec) {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.positions = positions
	for i, p := range positions {
		c, r, l := g.cellCoords(p)
		idx := g.flat(c, r, l)
		g.cells[idx] = append(g.cells[idx], i)
	}
}

// QueryRadiusInto implements NeighborIndex.
func (g *SpatialGrid) QueryRadiusInto(dst []Neighbor, self int, radius float64) []Neighbor {
	origin := g.positions[self]
	radiusSq := radius * radius

	c0, r0, l0 := g.cellCoords(r3.Sub(origin, r3.Vec{X: radius, Y: radius, Z: radius}))
	c1, r1, l1 := g.cellCoords(r3.Add(origin, r3.Vec{X: radius, Y: radius, Z: radius}))

	for l := l0; l <= l1; l++ {
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				for _, i := range g.cells[g.flat(c, r, l)] {
					if i == self {
						continue
					}
					if d := distanceSq(origin, g.positions[i]); d <= radiusSq {
						dst = append(dst, Neighbor{Index: i, DistSq: d})
					}
				}
			}
		}
	}
	return dst
}

// cellCoords returns the clamped cell coordinates containing p.
// Positions outside the box land in the nearest edge cell.
func (g *SpatialGrid) cellCoords(p r3.Vec) (col, row, layer int) {
	col = clampCell(p.X-g.min.X, g.cellSize, g.cols)
	row = clampCell(p.Y-g.min.Y, g.cellSize, g.rows)
	layer = clampCell(p.Z-g.min.Z, g.cellSize, g.layers)
	return col, row, layer
}

func (g *SpatialGrid) flat(col, row, layer int) int {
	return (layer*g.rows+row)*g.cols + col
}

func clampCell(offset, cellSize float64, n int) int {
	i := int(math.Floor(offset / cellSize))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
