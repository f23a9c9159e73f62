// Package scan reads the entries of one monthly log file that fall inside a
// time range, starting from the day offset its index recommends.
package scan

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logparse"
)

// Params selects log entries. From and To are inclusive.
type Params struct {
	Character string
	LogType   string
	From      time.Time
	To        time.Time
	// Contains lists substrings that must all occur in an entry's content,
	// compared case-insensitively.
	Contains []string
	// Source, if set, keeps only entries spoken by that name.
	Source string
}

// Validate checks that p describes a searchable range.
func (p Params) Validate() error {
	var errs []error
	if p.Character == "" {
		errs = append(errs, errors.New("character is required"))
	}
	if p.LogType == "" {
		errs = append(errs, errors.New("log type is required"))
	}
	if p.From.IsZero() || p.To.IsZero() {
		errs = append(errs, errors.New("from and to are required"))
	} else if p.To.Before(p.From) {
		errs = append(errs, errors.New("to must not be before from"))
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Join(errors.New("scan: invalid parameters"), err)
	}
	return nil
}

// Key identifies equal searches. Two Params with the same Key produce the
// same result from the same files.
type Key struct {
	Character string
	LogType   string
	From      int64
	To        int64
	Contains  string
	Source    string
}

// Key returns the comparable identity of p.
func (p Params) Key() Key {
	// Filter order, repeats and empty filters do not change what matches.
	contains := make([]string, 0, len(p.Contains))
	for _, c := range p.Contains {
		if c != "" {
			contains = append(contains, strings.ToLower(c))
		}
	}
	slices.Sort(contains)
	contains = slices.Compact(contains)
	return Key{
		Character: strings.ToLower(p.Character),
		LogType:   p.LogType,
		From:      p.From.UnixNano(),
		To:        p.To.UnixNano(),
		Contains:  strings.Join(contains, "\x00"),
		Source:    strings.ToLower(p.Source),
	}
}

// InRange reports whether t lies within [From, To].
func (p Params) InRange(t time.Time) bool {
	return !t.Before(p.From) && !t.After(p.To)
}

// Match reports whether e passes the content and source filters. The time
// range is checked separately.
func (p Params) Match(e logparse.Entry) bool {
	if p.Source != "" && !strings.EqualFold(e.Source, p.Source) {
		return false
	}
	if len(p.Contains) == 0 {
		return true
	}
	content := strings.ToLower(e.Content)
	for _, c := range p.Contains {
		if !strings.Contains(content, strings.ToLower(c)) {
			return false
		}
	}
	return true
}
