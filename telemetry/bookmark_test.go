package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bookmarkTypes(bms []Bookmark) []BookmarkType {
	var out []BookmarkType
	for _, b := range bms {
		out = append(out, b.Type)
	}
	return out
}

func TestBookmarkDetector_OrderingHysteresis(t *testing.T) {
	bd := NewBookmarkDetector(10)

	assert.Empty(t, bd.Check(WindowStats{WindowEndTick: 300, Polarization: 0.5}))

	got := bd.Check(WindowStats{WindowEndTick: 600, Polarization: 0.92})
	assert.Contains(t, bookmarkTypes(got), BookmarkFlockOrdered)

	// Still ordered, no repeat.
	got = bd.Check(WindowStats{WindowEndTick: 900, Polarization: 0.95})
	assert.NotContains(t, bookmarkTypes(got), BookmarkFlockOrdered)

	// Between the levels nothing fires.
	got = bd.Check(WindowStats{WindowEndTick: 1200, Polarization: 0.5})
	assert.NotContains(t, bookmarkTypes(got), BookmarkFlockDisordered)

	got = bd.Check(WindowStats{WindowEndTick: 1500, Polarization: 0.2})
	assert.Contains(t, bookmarkTypes(got), BookmarkFlockDisordered)
}

func TestBookmarkDetector_Fragmentation(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int64(i * 300), SpreadP50: 10})
	}

	got := bd.Check(WindowStats{WindowEndTick: 1500, SpreadP50: 16})
	assert.Contains(t, bookmarkTypes(got), BookmarkFragmentation)

	got = bd.Check(WindowStats{WindowEndTick: 1800, SpreadP50: 11})
	assert.NotContains(t, bookmarkTypes(got), BookmarkFragmentation)
}

func TestBookmarkDetector_FallbackBurst(t *testing.T) {
	bd := NewBookmarkDetector(10)
	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int64(i * 300), CohesionFallbacks: 3})
	}

	got := bd.Check(WindowStats{WindowEndTick: 1500, CohesionFallbacks: 5, SeparationFallbacks: 6})
	assert.Contains(t, bookmarkTypes(got), BookmarkFallbackBurst)
}

func TestBookmarkDetector_StableFlockFiresOnce(t *testing.T) {
	bd := NewBookmarkDetector(10)

	var stable int
	for i := 0; i < 20; i++ {
		for _, b := range bd.Check(WindowStats{WindowEndTick: int64(i * 300), Polarization: 0.95}) {
			if b.Type == BookmarkStableFlock {
				stable++
			}
		}
	}
	assert.Equal(t, 1, stable)
}

func TestBookmarkDetector_HistoryIsChronological(t *testing.T) {
	bd := NewBookmarkDetector(5)
	for i := 0; i < 7; i++ {
		bd.Check(WindowStats{WindowEndTick: int64(i)})
	}

	var ticks []int64
	for _, h := range bd.getHistory() {
		ticks = append(ticks, h.WindowEndTick)
	}
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, ticks)
}
