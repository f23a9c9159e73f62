// Package logparse recognises the two line shapes found in the game's log
// files: session headers ("Logging started 2015-03-05") and timestamped
// entries ("[12:34:56] text" or "[12:34:56] <Name> text").
package logparse

import (
	"strings"
	"time"
)

const (
	headerPrefix = "Logging started "
	dateLayout   = "2006-01-02"
	bom          = "\ufeff"
)

// Entry is one timestamped log line. It is immutable once created.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Raw       string    `json:"raw"`
	Source    string    `json:"source,omitempty"` // speaker for chat lines
	Content   string    `json:"content"`
}

// Parser turns raw log lines into dates, clocks and entries. Dates are
// interpreted in the parser's location (the client writes local time).
type Parser struct {
	loc *time.Location
}

// New creates a Parser for the given location. A nil location means
// time.Local.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{loc: loc}
}

// Location returns the parser's time zone.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Header reports whether line is a session header and returns the date it
// announces (midnight, parser location).
func (p *Parser) Header(line string) (time.Time, bool) {
	line = strings.TrimPrefix(line, bom)
	if !strings.HasPrefix(line, headerPrefix) {
		return time.Time{}, false
	}
	rest := line[len(headerPrefix):]
	if len(rest) < len(dateLayout) {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(dateLayout, rest[:len(dateLayout)], p.loc)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// Clock reports whether line starts with a "[HH:MM:SS]" stamp and returns
// the time of day it carries.
func (p *Parser) Clock(line string) (time.Duration, bool) {
	line = strings.TrimPrefix(line, bom)
	if len(line) < 10 || line[0] != '[' || line[3] != ':' || line[6] != ':' || line[9] != ']' {
		return 0, false
	}
	h, ok1 := twoDigits(line[1:3])
	m, ok2 := twoDigits(line[4:6])
	s, ok3 := twoDigits(line[7:9])
	if !ok1 || !ok2 || !ok3 || h > 23 || m > 59 || s > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, true
}

// Entry parses a timestamped line belonging to the given day. It returns
// false for lines without a valid stamp.
func (p *Parser) Entry(day time.Time, line string) (Entry, bool) {
	clock, ok := p.Clock(line)
	if !ok {
		return Entry{}, false
	}
	y, mo, d := day.Date()
	ts := time.Date(y, mo, d, 0, 0, 0, 0, p.loc).Add(clock)

	body := strings.TrimPrefix(strings.TrimPrefix(line, bom)[10:], " ")
	var source string
	if strings.HasPrefix(body, "<") {
		if end := strings.IndexByte(body, '>'); end > 1 {
			source = body[1:end]
			body = strings.TrimPrefix(body[end+1:], " ")
		}
	}

	return Entry{
		Timestamp: ts,
		Raw:       line,
		Source:    source,
		Content:   body,
	}, true
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}
