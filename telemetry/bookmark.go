package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkFlockOrdered    BookmarkType = "flock_ordered"
	BookmarkFlockDisordered BookmarkType = "flock_disordered"
	BookmarkFragmentation   BookmarkType = "fragmentation"
	BookmarkFallbackBurst   BookmarkType = "fallback_burst"
	BookmarkStableFlock     BookmarkType = "stable_flock"
)

// Polarization levels with hysteresis between them.
const (
	orderedPolarization    = 0.9
	disorderedPolarization = 0.3
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type" json:"type"`
	Tick        int64        `csv:"tick" json:"tick"`
	Description string       `csv:"description" json:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the flock's evolution.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	ordered            bool // polarization last crossed the ordered level upwards
	stableWindowsCount int  // consecutive windows with steady polarization
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stable flock detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	for _, check := range []func(WindowStats) *Bookmark{
		bd.checkOrdering,
		bd.checkFragmentation,
		bd.checkFallbackBurst,
		bd.checkStableFlock,
	} {
		if b := check(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns the recorded windows, oldest first.
func (bd *BookmarkDetector) getHistory() []WindowStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	out := make([]WindowStats, 0, bd.historySize)
	out = append(out, bd.history[bd.historyIdx:]...)
	return append(out, bd.history[:bd.historyIdx]...)
}

// checkOrdering fires when polarization rises above the ordered level, and
// again when an ordered flock falls below the disordered level.
func (bd *BookmarkDetector) checkOrdering(stats WindowStats) *Bookmark {
	switch {
	case !bd.ordered && stats.Polarization >= orderedPolarization:
		bd.ordered = true
		return &Bookmark{
			Type:        BookmarkFlockOrdered,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Polarization reached %.2f", stats.Polarization),
		}
	case bd.ordered && stats.Polarization <= disorderedPolarization:
		bd.ordered = false
		return &Bookmark{
			Type:        BookmarkFlockDisordered,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Polarization fell to %.2f", stats.Polarization),
		}
	}
	return nil
}

// checkFragmentation fires when the median distance from the centroid grows
// past 1.5x its rolling average.
func (bd *BookmarkDetector) checkFragmentation(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.SpreadP50
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.SpreadP50 > avg*1.5 {
		return &Bookmark{
			Type:        BookmarkFragmentation,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Median spread %.1f is %.1fx average (%.1f)", stats.SpreadP50, stats.SpreadP50/avg, avg),
		}
	}
	return nil
}

// checkFallbackBurst fires when degenerate directions exceed twice their
// rolling average.
func (bd *BookmarkDetector) checkFallbackBurst(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.fallbacks()
	}
	avg := float64(total) / float64(len(history))
	current := stats.fallbacks()

	if current >= 10 && float64(current) > avg*2 {
		return &Bookmark{
			Type:        BookmarkFallbackBurst,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d degenerate directions, average %.1f", current, avg),
		}
	}
	return nil
}

// checkStableFlock fires once after five consecutive windows whose
// polarization stays ordered and varies by less than 0.02.
func (bd *BookmarkDetector) checkStableFlock(stats WindowStats) *Bookmark {
	if stats.Polarization < orderedPolarization {
		bd.stableWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	lo, hi := stats.Polarization, stats.Polarization
	for _, h := range history[len(history)-4:] {
		lo = min(lo, h.Polarization)
		hi = max(hi, h.Polarization)
	}

	if hi-lo < 0.02 {
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkStableFlock,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Polarization steady at %.2f over 5+ windows", stats.Polarization),
		}
	}
	return nil
}

func (s WindowStats) fallbacks() int {
	return s.AlignmentFallbacks + s.CohesionFallbacks + s.SeparationFallbacks + s.LookFallbacks
}
