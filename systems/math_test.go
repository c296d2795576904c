package systems

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func assertVecInDelta(t *testing.T, want, got r3.Vec, delta float64, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, msgAndArgs...)
	assert.InDelta(t, want.Y, got.Y, delta, msgAndArgs...)
	assert.InDelta(t, want.Z, got.Z, delta, msgAndArgs...)
}

func TestTryNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      r3.Vec
		want    r3.Vec
		wantErr bool
	}{
		{"axis", r3.Vec{X: 3}, r3.Vec{X: 1}, false},
		{"diagonal", r3.Vec{X: 1, Y: 1}, r3.Vec{X: math.Sqrt2 / 2, Y: math.Sqrt2 / 2}, false},
		{"zero", r3.Vec{}, r3.Vec{}, true},
		{"near zero", r3.Vec{X: 1e-9, Y: -1e-9}, r3.Vec{}, true},
		{"nan", r3.Vec{X: math.NaN()}, r3.Vec{}, true},
		{"inf", r3.Vec{Y: math.Inf(1)}, r3.Vec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TryNormalize(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrDegenerateDirection)
				return
			}
			require.NoError(t, err)
			assertVecInDelta(t, tt.want, got, tol)
		})
	}
}

func TestAnyOrthonormal(t *testing.T) {
	inputs := []r3.Vec{
		{X: 1}, {Y: 1}, {Z: 1}, {Z: -1}, {X: -1},
		r3.Unit(r3.Vec{X: 1, Y: 2, Z: 3}),
		r3.Unit(r3.Vec{X: -0.3, Y: 0.1, Z: -0.9}),
	}
	for _, v := range inputs {
		o := AnyOrthonormal(v)
		assert.InDelta(t, 1, r3.Norm(o), tol, "not unit for %v", v)
		assert.InDelta(t, 0, r3.Dot(o, v), tol, "not orthogonal for %v", v)
	}
}

func TestAnyOrthogonal(t *testing.T) {
	inputs := []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}, {X: 2, Y: -1, Z: 0.5}}
	for _, v := range inputs {
		o := AnyOrthogonal(v)
		assert.Greater(t, r3.Norm(o), 0.0, "zero result for %v", v)
		assert.InDelta(t, 0, r3.Dot(o, v), tol, "not orthogonal for %v", v)
	}
}

func TestSlerp(t *testing.T) {
	x := r3.Vec{X: 1}
	y := r3.Vec{Y: 1}

	t.Run("endpoints", func(t *testing.T) {
		assertVecInDelta(t, x, Slerp(x, y, 0), tol)
		assertVecInDelta(t, y, Slerp(x, y, 1), tol)
	})

	t.Run("halfway", func(t *testing.T) {
		got := Slerp(x, y, 0.5)
		assertVecInDelta(t, r3.Vec{X: math.Sqrt2 / 2, Y: math.Sqrt2 / 2}, got, tol)
	})

	t.Run("same direction", func(t *testing.T) {
		assert.Equal(t, x, Slerp(x, x, 0.3))
	})

	t.Run("antiparallel stays unit", func(t *testing.T) {
		got := Slerp(x, r3.Vec{X: -1}, 0.5)
		assert.InDelta(t, 1, r3.Norm(got), tol)
		assert.InDelta(t, 0, got.X, tol, "halfway between opposites is orthogonal to both")
	})

	t.Run("overshoot", func(t *testing.T) {
		got := Slerp(x, y, 2)
		assertVecInDelta(t, r3.Vec{X: -1}, got, tol)
	})
}

func TestLookTo(t *testing.T) {
	t.Run("already orthonormal", func(t *testing.T) {
		h := LookTo(r3.Vec{Z: 1}, r3.Vec{X: 1})
		assertVecInDelta(t, r3.Vec{Z: 1}, h.Forward, tol)
		assertVecInDelta(t, r3.Vec{X: 1}, h.Up, tol)
	})

	t.Run("up is re-orthogonalized", func(t *testing.T) {
		h := LookTo(r3.Vec{Z: 1}, r3.Vec{X: 1, Z: 1})
		assertVecInDelta(t, r3.Vec{Z: 1}, h.Forward, tol)
		assertVecInDelta(t, r3.Vec{X: 1}, h.Up, tol)
	})

	t.Run("parallel up", func(t *testing.T) {
		h := LookTo(r3.Vec{Y: 2}, r3.Vec{Y: 1})
		assert.InDelta(t, 1, r3.Norm(h.Up), tol)
		assert.InDelta(t, 0, r3.Dot(h.Up, h.Forward), tol)
	})

	t.Run("degenerate inputs", func(t *testing.T) {
		h := LookTo(r3.Vec{}, r3.Vec{})
		assertVecInDelta(t, r3.Vec{Z: -1}, h.Forward, tol)
		assertVecInDelta(t, r3.Vec{Y: 1}, h.Up, tol)
	})
}
