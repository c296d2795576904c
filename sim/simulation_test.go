package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/flock/components"
	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/telemetry"
)

const tol = 1e-12

func testConfig(t *testing.T, count int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Flock.Count = count
	require.NoError(t, cfg.Finalize())
	return cfg
}

func assertVecInDelta(t *testing.T, want, got r3.Vec, delta float64, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, delta, msgAndArgs...)
	assert.InDelta(t, want.Y, got.Y, delta, msgAndArgs...)
	assert.InDelta(t, want.Z, got.Z, delta, msgAndArgs...)
}

func TestTwoBoidsFacingApart(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.Flock.PerceptionRadius = 8
	require.NoError(t, cfg.Finalize())

	x := r3.Vec{X: 1}
	negX := r3.Vec{X: -1}
	s, err := NewWithBoids(cfg, []components.Boid{
		newBoid(cfg, r3.Vec{X: -0.5}, negX),
		newBoid(cfg, r3.Vec{X: 0.5}, x),
	})
	require.NoError(t, err)

	stats := s.Step(0.016)
	assert.Equal(t, int64(1), stats.Tick)
	assert.Equal(t, 2, stats.Neighbors)
	assert.Zero(t, stats.Fallbacks())

	a, b := s.Store().At(0), s.Store().At(1)

	// Alignment adopts the other boid's heading.
	assertVecInDelta(t, x, a.Steering.Alignment, tol)
	assertVecInDelta(t, negX, b.Steering.Alignment, tol)

	// Cohesion points from each boid towards the midpoint at the origin.
	assertVecInDelta(t, x, a.Steering.Cohesion, tol)
	assertVecInDelta(t, negX, b.Steering.Cohesion, tol)

	// Within the separation distance each boid is pushed away from the other.
	assertVecInDelta(t, negX, a.Steering.Separation, tol)
	assertVecInDelta(t, x, b.Steering.Separation, tol)

	// Both still move apart along their (slightly turned) headings.
	assert.Less(t, a.Transform.Position.X, -0.5)
	assert.Greater(t, b.Transform.Position.X, 0.5)
	assert.InDelta(t, -a.Transform.Position.X, b.Transform.Position.X, 1e-9)
}

func TestIsolatedBoidFliesStraight(t *testing.T) {
	cfg := testConfig(t, 1)
	start := r3.Vec{X: 10, Y: 3, Z: -2}
	s, err := NewWithBoids(cfg, []components.Boid{newBoid(cfg, start, r3.Vec{X: 1})})
	require.NoError(t, err)
	initial := s.Store().At(0)

	var wraps int
	for i := 0; i < 100; i++ {
		stats := s.Step(0.1)
		wraps += stats.Wraps
		assert.Zero(t, stats.Neighbors)
	}

	b := s.Store().At(0)
	assert.Equal(t, initial.Steering, b.Steering)
	assertVecInDelta(t, initial.Transform.Heading.Up, b.Transform.Heading.Up, 1e-9)
	assert.InDelta(t, start.Y, b.Transform.Position.Y, 1e-9)
	assert.InDelta(t, start.Z, b.Transform.Position.Z, 1e-9)
	assert.True(t, s.Bounds().Contains(b.Transform.Position))
	// 100 units of travel in an 80 wide box.
	assert.Equal(t, 1, wraps)
}

func TestWrapAtBoundary(t *testing.T) {
	cfg := testConfig(t, 1)
	s, err := NewWithBoids(cfg, []components.Boid{newBoid(cfg, r3.Vec{X: 39.9}, r3.Vec{X: 1})})
	require.NoError(t, err)

	stats := s.Step(0.02)
	assert.Equal(t, 1, stats.Wraps)
	assert.Equal(t, -40.0, s.Store().At(0).Transform.Position.X)
}

func TestStepKeepsInvariants(t *testing.T) {
	cfg := testConfig(t, 300)
	s, err := New(cfg, NewRandomSource(11))
	require.NoError(t, err)

	for tick := 0; tick < 60; tick++ {
		s.Step(cfg.Physics.DT)
		for i, b := range s.Store().All() {
			h := b.Transform.Heading
			require.True(t, s.Bounds().Contains(b.Transform.Position), "tick %d boid %d", tick, i)
			require.InDelta(t, 1, r3.Norm(h.Up), 1e-9)
			require.InDelta(t, 1, r3.Norm(h.Forward), 1e-9)
			require.InDelta(t, 0, r3.Dot(h.Up, h.Forward), 1e-9)
			require.InDelta(t, 1, r3.Norm(b.Steering.Alignment), 1e-9)
			require.InDelta(t, 1, r3.Norm(b.Steering.Cohesion), 1e-9)
			require.InDelta(t, 1, r3.Norm(b.Steering.Separation), 1e-9)
		}
	}
	assert.Equal(t, int64(60), s.Tick())
	assert.InDelta(t, 1.0, s.Time(), 1e-9)
}

func TestStepIndependentOfWorkerCount(t *testing.T) {
	run := func(workers int) []components.Boid {
		cfg := testConfig(t, 400)
		cfg.Parallel.Workers = workers
		s, err := New(cfg, NewRandomSource(5))
		require.NoError(t, err)
		for i := 0; i < 30; i++ {
			s.Step(cfg.Physics.DT)
		}
		return s.Store().All()
	}

	serial := run(1)
	assert.Equal(t, serial, run(3))
	assert.Equal(t, serial, run(8))
}

func TestStepSteersFromPreTickState(t *testing.T) {
	// Boid 1's alignment must see boid 0's heading from before the tick,
	// even though boid 0 is integrated first.
	cfg := testConfig(t, 2)
	z := r3.Vec{Z: 1}
	y := r3.Vec{Y: 1}
	s, err := NewWithBoids(cfg, []components.Boid{
		newBoid(cfg, r3.Vec{}, z),
		newBoid(cfg, r3.Vec{X: 1}, y),
	})
	require.NoError(t, err)

	s.Step(0.5)
	assertVecInDelta(t, z, s.Store().At(1).Steering.Alignment, tol)
	assertVecInDelta(t, y, s.Store().At(0).Steering.Alignment, tol)
}

func TestGridAndScanAgree(t *testing.T) {
	run := func(kind string) []components.Boid {
		cfg := testConfig(t, 200)
		cfg.Flock.NeighborIndex = kind
		s, err := New(cfg, NewRandomSource(21))
		require.NoError(t, err)
		s.Step(cfg.Physics.DT)
		return s.Store().All()
	}

	grid, scan := run("grid"), run("scan")
	require.Len(t, scan, len(grid))
	for i := range grid {
		// Neighbor order differs between the indexes, so sums may differ
		// in the last bits.
		assertVecInDelta(t, scan[i].Transform.Position, grid[i].Transform.Position, 1e-9, "boid %d", i)
		assertVecInDelta(t, scan[i].Steering.Cohesion, grid[i].Steering.Cohesion, 1e-9, "boid %d", i)
	}
}

func TestNewWithBoidsErrors(t *testing.T) {
	cfg := testConfig(t, 0)
	cfg.Flock.NeighborIndex = "octree"
	_, err := NewWithBoids(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig(t, 0)
	cfg.Separation.Mode = "sideways"
	_, err = NewWithBoids(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig(t, 0)
	cfg.World.Width = 0
	_, err = NewWithBoids(cfg, nil)
	assert.Error(t, err)
}

func TestEmptyFlockSteps(t *testing.T) {
	s, err := New(testConfig(t, 0), NewRandomSource(1))
	require.NoError(t, err)
	stats := s.Step(0.1)
	assert.Equal(t, int64(1), stats.Tick)
	assert.Zero(t, stats.Neighbors)
}

func TestSnapshotRestore(t *testing.T) {
	cfg := testConfig(t, 100)
	s, err := New(cfg, NewRandomSource(4))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		s.Step(cfg.Physics.DT)
	}

	snap := s.Snapshot("run-1", 4)
	assert.Equal(t, int64(10), snap.Tick)
	assert.Equal(t, [3]float64{80, 45, 45}, snap.World)

	restored, err := Restore(cfg, snap)
	require.NoError(t, err)
	assert.Equal(t, s.Tick(), restored.Tick())
	assert.Equal(t, s.Store().All(), restored.Store().All())

	for i := 0; i < 5; i++ {
		s.Step(cfg.Physics.DT)
		restored.Step(cfg.Physics.DT)
	}
	assert.Equal(t, s.Store().All(), restored.Store().All())

	other := testConfig(t, 100)
	other.World.Width = 100
	require.NoError(t, other.Finalize())
	_, err = Restore(other, snap)
	assert.Error(t, err)
}

func TestResumeFromSnapshotFile(t *testing.T) {
	cfg := testConfig(t, 150)
	cfg.Physics.DT = 0.1
	require.NoError(t, cfg.Finalize())

	s, err := New(cfg, NewRandomSource(11))
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		s.Step(cfg.Physics.DT)
	}

	path, err := telemetry.SaveSnapshot(s.Snapshot("run-file", 11), t.TempDir())
	require.NoError(t, err)
	snap, err := telemetry.LoadSnapshot(path)
	require.NoError(t, err)

	resumed, err := Restore(cfg, snap)
	require.NoError(t, err)
	assert.Equal(t, s.Tick(), resumed.Tick())
	assert.Equal(t, s.Time(), resumed.Time())
	require.Equal(t, s.Store().All(), resumed.Store().All())

	for i := 0; i < 40; i++ {
		a := s.Step(cfg.Physics.DT)
		b := resumed.Step(cfg.Physics.DT)
		require.Equal(t, a, b, "step %d", i)
	}
	assert.Equal(t, s.Store().All(), resumed.Store().All())
	assert.Equal(t, s.Time(), resumed.Time())
}

func TestFrame(t *testing.T) {
	cfg := testConfig(t, 1)
	s, err := NewWithBoids(cfg, []components.Boid{newBoid(cfg, r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{Y: 1})})
	require.NoError(t, err)

	f := s.Frame()
	assert.Equal(t, int64(0), f.Tick)
	assert.Equal(t, [3]float64{80, 45, 45}, f.World)
	require.Len(t, f.Boids, 1)
	assert.Equal(t, [3]float64{1, 2, 3}, f.Boids[0].Position)

	// The frame is a copy.
	s.Step(0.1)
	assert.Equal(t, [3]float64{1, 2, 3}, f.Boids[0].Position)
	assert.Equal(t, int64(1), s.Frame().Tick)
}
