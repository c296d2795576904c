package systems

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
)

// IntegrateOptions tunes the integrator.
type IntegrateOptions struct {
	// ClampFraction clamps the interpolation weight (dt) to [0, 1].
	// Without it a stalled frame with dt > 1 overshoots past the target.
	ClampFraction bool
}

// IntegrateResult reports what happened to one boid during integration.
type IntegrateResult struct {
	LookFallback bool // summed steering was degenerate, Up was kept as target
	Wrapped      bool // position crossed a face of the bounds
}

// Integrate turns b towards its desired directions and advances it by dt
// seconds along its Up, then wraps it into bounds.
//
// Forward is interpolated towards a direction orthogonal to the alignment
// target and Up towards the normalized sum of the three desired directions,
// both by the fraction dt. The heading is then re-orthogonalized with Forward
// kept exact.
func Integrate(b *components.Boid, dt float64, bounds Bounds, opts IntegrateOptions) IntegrateResult {
	var res IntegrateResult

	t := &b.Transform
	s := b.Steering

	frac := dt
	if opts.ClampFraction {
		frac = clamp01(frac)
	}

	look, err := TryNormalize(r3.Add(r3.Add(s.Alignment, s.Cohesion), s.Separation))
	if err != nil {
		look = t.Heading.Up
		res.LookFallback = true
	}

	forward := Slerp(t.Heading.Forward, AnyOrthonormal(s.Alignment), frac)
	up := Slerp(t.Heading.Up, look, frac)
	t.Heading = LookTo(forward, up)

	t.Position = r3.Add(t.Position, r3.Scale(b.Speed.Current*dt, t.Heading.Up))
	t.Position, res.Wrapped = bounds.Wrap(t.Position)

	return res
}
