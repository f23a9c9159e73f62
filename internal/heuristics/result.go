package heuristics

import "sort"

// Day records where one calendar day's entries begin in a monthly file.
type Day struct {
	Day    int   `json:"day" yaml:"day"`
	Offset int64 `json:"offset" yaml:"offset"` // byte offset of the day's first line
	Line   int   `json:"line" yaml:"line"`     // zero-based line number at Offset
	// Lines is the number of lines belonging to the day, or -1 while the
	// day is still being written.
	Lines   int  `json:"lines" yaml:"lines"`
	Certain bool `json:"certain" yaml:"certain"`
}

// Stats describes the extraction pass that produced a Result.
type Stats struct {
	Lines     int // lines read
	Malformed int // lines skipped as unrecognised
}

// Result is the day index of one monthly file. Days are ordered by day and
// by offset; at most the last one is uncertain.
type Result struct {
	Days  []Day
	Stats Stats // not persisted; zero when served from the cache
}

// Lookup returns the record for day.
func (r Result) Lookup(day int) (Day, bool) {
	i := sort.Search(len(r.Days), func(i int) bool { return r.Days[i].Day >= day })
	if i < len(r.Days) && r.Days[i].Day == day {
		return r.Days[i], true
	}
	return Day{}, false
}

// Floor returns the latest recorded day that is not after day.
func (r Result) Floor(day int) (Day, bool) {
	i := sort.Search(len(r.Days), func(i int) bool { return r.Days[i].Day > day })
	if i == 0 {
		return Day{}, false
	}
	return r.Days[i-1], true
}

// Last returns the final recorded day.
func (r Result) Last() (Day, bool) {
	if len(r.Days) == 0 {
		return Day{}, false
	}
	return r.Days[len(r.Days)-1], true
}

// HasUncertain reports whether the last day may still move or grow.
func (r Result) HasUncertain() bool {
	last, ok := r.Last()
	return ok && !last.Certain
}

func cloneDays(days []Day) []Day {
	if days == nil {
		return nil
	}
	out := make([]Day, len(days))
	copy(out, days)
	return out
}
