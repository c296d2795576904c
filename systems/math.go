package systems

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
)

// ErrDegenerateDirection is returned when a unit vector is requested from a
// zero, near-zero or non-finite vector.
var ErrDegenerateDirection = errors.New("degenerate direction")

// minDirectionNorm is the smallest norm TryNormalize accepts.
const minDirectionNorm = 1e-6

// slerpEpsilon is the angle below which two directions are treated as equal.
const slerpEpsilon = 1e-12

// clamp01 clamps a value to the [0, 1] range.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// distanceSq returns the squared distance between two points.
func distanceSq(p, q r3.Vec) float64 {
	return r3.Norm2(r3.Sub(p, q))
}

// TryNormalize returns the unit vector colinear to v, or
// ErrDegenerateDirection if v has no usable direction.
func TryNormalize(v r3.Vec) (r3.Vec, error) {
	n := r3.Norm(v)
	if math.IsNaN(n) || math.IsInf(n, 0) || n < minDirectionNorm {
		return r3.Vec{}, ErrDegenerateDirection
	}
	return r3.Scale(1/n, v), nil
}

// AnyOrthogonal returns some vector orthogonal to v, not normalized.
// It is stable for any non-zero v.
func AnyOrthogonal(v r3.Vec) r3.Vec {
	if math.Abs(v.X) > math.Abs(v.Y) {
		return r3.Vec{X: -v.Z, Y: 0, Z: v.X}
	}
	return r3.Vec{X: 0, Y: v.Z, Z: -v.Y}
}

// AnyOrthonormal returns some unit vector orthogonal to the unit vector v
// (Duff et al., "Building an Orthonormal Basis, Revisited").
func AnyOrthonormal(v r3.Vec) r3.Vec {
	sign := math.Copysign(1, v.Z)
	a := -1 / (sign + v.Z)
	b := v.X * v.Y * a
	return r3.Vec{X: b, Y: sign + v.Y*v.Y*a, Z: -v.Y}
}

// Slerp spherically interpolates the unit vector from towards the unit
// vector to by fraction t. t is not clamped: values outside [0, 1]
// extrapolate along the same great circle.
// Antiparallel inputs rotate about an arbitrary axis orthogonal to from.
func Slerp(from, to r3.Vec, t float64) r3.Vec {
	axis := r3.Cross(from, to)
	sin := r3.Norm(axis)
	angle := math.Atan2(sin, r3.Dot(from, to))
	if angle < slerpEpsilon {
		return from
	}
	if sin < slerpEpsilon {
		axis = AnyOrthonormal(from)
	}
	out, err := TryNormalize(r3.Rotate(from, t*angle, axis))
	if err != nil {
		return from
	}
	return out
}

// LookTo builds an orthonormal heading whose Forward is dir and whose Up is
// up projected onto the plane orthogonal to dir.
// A degenerate dir or up falls back to -Z and +Y respectively.
func LookTo(dir, up r3.Vec) components.Heading {
	fwd, err := TryNormalize(dir)
	if err != nil {
		fwd = r3.Vec{Z: -1}
	}
	u, err := TryNormalize(up)
	if err != nil {
		u = r3.Vec{Y: 1}
	}
	back := r3.Scale(-1, fwd)
	right, err := TryNormalize(r3.Cross(u, back))
	if err != nil {
		right = AnyOrthonormal(u)
	}
	return components.Heading{Forward: fwd, Up: r3.Cross(back, right)}
}
