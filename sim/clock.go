package sim

import "time"

// Clock reports the elapsed time for each tick, in seconds.
type Clock interface {
	Delta() float64
}

// FixedClock returns the same delta every tick. Headless runs use it so a
// run is reproducible from its seed.
type FixedClock float64

// Delta implements Clock.
func (c FixedClock) Delta() float64 {
	return float64(c)
}

// WallClock measures real time between calls to Delta.
// The first call returns 0.
type WallClock struct {
	// MaxDelta caps the reported delta after a stall; 0 disables the cap.
	MaxDelta float64

	last time.Time
	now  func() time.Time
}

// NewWallClock returns a WallClock capped at maxDelta seconds.
func NewWallClock(maxDelta float64) *WallClock {
	return &WallClock{MaxDelta: maxDelta}
}

// Delta implements Clock.
func (c *WallClock) Delta() float64 {
	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	if c.last.IsZero() {
		c.last = now
		return 0
	}
	d := now.Sub(c.last).Seconds()
	c.last = now
	if c.MaxDelta > 0 && d > c.MaxDelta {
		d = c.MaxDelta
	}
	return d
}
