package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
)

func tank(t *testing.T) Bounds {
	t.Helper()
	b, err := NewBounds(80, 45, 45)
	require.NoError(t, err)
	return b
}

func TestIntegrateWrapsAtBoundary(t *testing.T) {
	b := newBoid(r3.Vec{X: 39.9}, r3.Vec{X: 1})
	res := Integrate(&b, 0.02, tank(t), IntegrateOptions{ClampFraction: true})

	assert.True(t, res.Wrapped)
	assert.False(t, res.LookFallback)
	assert.Equal(t, -40.0, b.Transform.Position.X)
	assert.InDelta(t, 0, b.Transform.Position.Y, tol)
	assert.InDelta(t, 0, b.Transform.Position.Z, tol)
}

func TestIntegrateAdvancesAlongUp(t *testing.T) {
	up := r3.Unit(r3.Vec{X: 1, Y: 2, Z: -1})
	b := newBoid(r3.Vec{X: 1, Y: 1, Z: 1}, up)
	b.Speed.Current = 3

	res := Integrate(&b, 0.1, tank(t), IntegrateOptions{ClampFraction: true})

	assert.False(t, res.Wrapped)
	assertVecInDelta(t, up, b.Transform.Heading.Up, 1e-9)
	want := r3.Add(r3.Vec{X: 1, Y: 1, Z: 1}, r3.Scale(0.3, up))
	assertVecInDelta(t, want, b.Transform.Position, 1e-9)
}

func TestIntegrateDegenerateLookKeepsUp(t *testing.T) {
	b := newBoid(r3.Vec{}, r3.Vec{Z: 1})
	b.Steering = components.Steering{
		Alignment:  r3.Vec{X: 1},
		Cohesion:   r3.Vec{X: -0.5, Y: math.Sqrt(3) / 2},
		Separation: r3.Vec{X: -0.5, Y: -math.Sqrt(3) / 2},
	}

	var res IntegrateResult
	require.NotPanics(t, func() {
		res = Integrate(&b, 0.016, tank(t), IntegrateOptions{ClampFraction: true})
	})
	assert.True(t, res.LookFallback)
	assertVecInDelta(t, r3.Vec{Z: 1}, b.Transform.Heading.Up, 1e-9)
}

func TestIntegrateFraction(t *testing.T) {
	target := r3.Vec{Y: 1}
	tests := []struct {
		name   string
		clamp  bool
		wantUp r3.Vec
	}{
		{"clamped reaches target", true, target},
		{"unclamped overshoots", false, r3.Vec{X: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBoid(r3.Vec{}, r3.Vec{X: 1})
			b.Speed.Current = 0
			b.Steering = components.NewSteering(target)

			Integrate(&b, 2, tank(t), IntegrateOptions{ClampFraction: tt.clamp})
			assertVecInDelta(t, tt.wantUp, b.Transform.Heading.Up, 1e-9)
		})
	}
}

func TestIntegrateKeepsHeadingOrthonormal(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	randomUnit := func() r3.Vec {
		for {
			v := r3.Vec{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
			if u, err := TryNormalize(v); err == nil {
				return u
			}
		}
	}

	bounds := tank(t)
	for i := 0; i < 200; i++ {
		b := newBoid(r3.Vec{}, randomUnit())
		b.Steering = components.Steering{
			Alignment:  randomUnit(),
			Cohesion:   randomUnit(),
			Separation: randomUnit(),
		}
		for step := 0; step < 20; step++ {
			Integrate(&b, rng.Float64()*0.5, bounds, IntegrateOptions{ClampFraction: true})
		}
		h := b.Transform.Heading
		assert.InDelta(t, 1, r3.Norm(h.Up), 1e-9)
		assert.InDelta(t, 1, r3.Norm(h.Forward), 1e-9)
		assert.InDelta(t, 0, r3.Dot(h.Up, h.Forward), 1e-9)
		assert.True(t, bounds.Contains(b.Transform.Position))
	}
}

func TestIntegrateZeroDtIsStill(t *testing.T) {
	b := newBoid(r3.Vec{X: 5, Y: -3, Z: 2}, r3.Vec{Y: 1})
	b.Steering = components.NewSteering(r3.Vec{X: 1})
	before := b.Transform

	Integrate(&b, 0, tank(t), IntegrateOptions{ClampFraction: true})
	assertVecInDelta(t, before.Position, b.Transform.Position, tol)
	assertVecInDelta(t, before.Heading.Up, b.Transform.Heading.Up, tol)
}
