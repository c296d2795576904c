package sim

import "math/rand"

// RandomSource supplies the uniform samples used to place the initial flock.
type RandomSource interface {
	// Range returns a value uniformly distributed in [lo, hi).
	Range(lo, hi float64) float64
}

// RandSource is the default RandomSource, backed by math/rand.
type RandSource struct {
	rng *rand.Rand
}

// NewRandomSource returns a deterministic source for seed.
func NewRandomSource(seed int64) *RandSource {
	return &RandSource{rng: rand.New(rand.NewSource(seed))}
}

// Range implements RandomSource.
func (r *RandSource) Range(lo, hi float64) float64 {
	return lo + r.rng.Float64()*(hi-lo)
}
