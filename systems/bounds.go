package systems

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Bounds is the fixed box the flock lives in, centered at the origin.
// Leaving through one face re-enters through the opposite face.
type Bounds struct {
	box r3.Box
}

// NewBounds creates bounds of the given full extents.
func NewBounds(width, height, depth float64) (Bounds, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return Bounds{}, fmt.Errorf("bounds must be positive, got %gx%gx%g", width, height, depth)
	}
	return Bounds{box: r3.NewBox(-width/2, -height/2, -depth/2, width/2, height/2, depth/2)}, nil
}

// Size returns the full extents of the box.
func (b Bounds) Size() r3.Vec {
	return b.box.Size()
}

// Half returns the half extents of the box.
func (b Bounds) Half() r3.Vec {
	return b.box.Max
}

// Box returns the underlying axis-aligned box.
func (b Bounds) Box() r3.Box {
	return b.box
}

// Contains reports whether p lies inside the box, faces included.
func (b Bounds) Contains(p r3.Vec) bool {
	return p.X >= b.box.Min.X && p.X <= b.box.Max.X &&
		p.Y >= b.box.Min.Y && p.Y <= b.box.Max.Y &&
		p.Z >= b.box.Min.Z && p.Z <= b.box.Max.Z
}

// Wrap teleports each coordinate of p that left the box to the opposite face.
// Axes are handled independently. An overshoot of more than one box width is
// not folded back in. It reports whether any axis wrapped.
func (b Bounds) Wrap(p r3.Vec) (r3.Vec, bool) {
	var wrapped bool
	p.X, wrapped = wrapAxis(p.X, b.box.Max.X, wrapped)
	p.Y, wrapped = wrapAxis(p.Y, b.box.Max.Y, wrapped)
	p.Z, wrapped = wrapAxis(p.Z, b.box.Max.Z, wrapped)
	return p, wrapped
}

func wrapAxis(v, half float64, wrapped bool) (float64, bool) {
	if v > half {
		return -half, true
	}
	if v < -half {
		return half, true
	}
	return v, wrapped
}
