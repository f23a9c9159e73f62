package heuristics

import (
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
)

// rolloverGap is how far the clock must jump backwards between two stamped
// lines of one session before the second line is taken as the next day.
const rolloverGap = 12 * time.Hour

// Tracker follows the calendar day through the lines of one monthly file.
// Sessions start with a header naming the date; a session running past
// midnight shows up as a clock that jumps backwards.
type Tracker struct {
	year   int
	month  time.Month
	maxDay int

	day       int // 0 until the first usable header
	lastClock time.Duration
	haveClock bool
}

// NewTracker creates a Tracker for the file's month.
func NewTracker(id logfile.Identity) *Tracker {
	return &Tracker{year: id.Year, month: id.Month, maxDay: id.DaysInMonth()}
}

// Seed positions the tracker at the start of a known day.
func (t *Tracker) Seed(day int) {
	t.day = day
	t.haveClock = false
}

// Day returns the current day of month, or 0 before the first header.
func (t *Tracker) Day() int {
	return t.day
}

// Date returns midnight of the current day in loc.
func (t *Tracker) Date(loc *time.Location) time.Time {
	return time.Date(t.year, t.month, t.day, 0, 0, 0, 0, loc)
}

// Header feeds a session header. opened reports that a new day starts at
// this line; a non-empty problem means the header was rejected.
func (t *Tracker) Header(date time.Time) (opened bool, problem string) {
	t.haveClock = false
	if date.Year() != t.year || date.Month() != t.month {
		return false, "header outside the file's month"
	}
	switch day := date.Day(); {
	case day == t.day:
		return false, ""
	case day < t.day:
		return false, "header earlier than the open day"
	default:
		t.day = day
		return true, ""
	}
}

// Stamp feeds the clock of a timestamped line.
func (t *Tracker) Stamp(clock time.Duration) (opened bool, problem string) {
	if t.day == 0 {
		return false, "entry before the first header"
	}
	if t.haveClock && t.lastClock-clock > rolloverGap && t.day < t.maxDay {
		t.day++
		opened = true
	}
	t.lastClock = clock
	t.haveClock = true
	return opened, ""
}
