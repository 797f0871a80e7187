// internal/firmware/progress.go
package firmware

import "time"

// ProgressTracker reconstructs multi-file flash progress from the
// tool's bare NN% output lines. The tool prints both indeterminate
// spinners (0% immediately followed by 100%) and real per-file bars
// (0%, increasing intermediates, 100%); nothing in the output marks
// which is which, so a 0%/100% pair closer together than the spinner
// threshold is discarded and only bars advance the unit counters.
type ProgressTracker struct {
	totalUnits       int
	spinnerThreshold time.Duration

	completedUnits int
	currentPercent int
	waitingZero    bool
	zeroSeenAt     time.Time
	barConfirmed   bool

	now func() time.Time
}

// NewProgressTracker creates a tracker for totalUnits flash bars.
func NewProgressTracker(totalUnits int, spinnerThreshold time.Duration) *ProgressTracker {
	if totalUnits < 1 {
		totalUnits = 1
	}
	if spinnerThreshold <= 0 {
		spinnerThreshold = 500 * time.Millisecond
	}
	return &ProgressTracker{
		totalUnits:       totalUnits,
		spinnerThreshold: spinnerThreshold,
		now:              time.Now,
	}
}

// Observe feeds one percentage value from the tool output.
func (t *ProgressTracker) Observe(percent int) {
	if percent < 0 || percent > 100 {
		return
	}

	switch {
	case percent == 0:
		t.waitingZero = true
		t.zeroSeenAt = t.now()
		t.barConfirmed = false
		t.currentPercent = 0

	case percent < 100:
		// an intermediate value proves this is a real bar
		t.waitingZero = false
		t.barConfirmed = true
		t.currentPercent = percent

	default: // 100
		if t.waitingZero && !t.barConfirmed {
			t.waitingZero = false
			if t.now().Sub(t.zeroSeenAt) < t.spinnerThreshold {
				// spinner pair, no real progress happened
				return
			}
			// slow direct 0->100, count the unit
			t.completeUnit()
			return
		}
		if t.barConfirmed {
			t.completeUnit()
		}
	}
}

// completeUnit closes the current bar. The current percentage resets
// to zero rather than holding at 100 so the next unit's opening 0%
// does not double-count.
func (t *ProgressTracker) completeUnit() {
	if t.completedUnits < t.totalUnits {
		t.completedUnits++
	}
	t.currentPercent = 0
	t.barConfirmed = false
}

// Overall returns the aggregate 0-100 progress across all units.
func (t *ProgressTracker) Overall() int {
	overall := (t.completedUnits*100 + t.currentPercent) / t.totalUnits
	if overall > 100 {
		overall = 100
	}
	return overall
}

// CompletedUnits returns how many bars have finished.
func (t *ProgressTracker) CompletedUnits() int {
	return t.completedUnits
}

// CurrentUnit returns the 1-based index of the bar in flight.
func (t *ProgressTracker) CurrentUnit() int {
	unit := t.completedUnits + 1
	if unit > t.totalUnits {
		unit = t.totalUnits
	}
	return unit
}

// CurrentPercent returns the in-flight bar's own percentage.
func (t *ProgressTracker) CurrentPercent() int {
	return t.currentPercent
}

// InBar reports whether the current unit has been confirmed as a real
// progress bar.
func (t *ProgressTracker) InBar() bool {
	return t.barConfirmed
}

// TotalUnits returns the number of bars the tracker expects.
func (t *ProgressTracker) TotalUnits() int {
	return t.totalUnits
}
