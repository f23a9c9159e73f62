package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/heuristics"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logparse"
)

// Result is what a scan found.
type Result struct {
	Entries []logparse.Entry
	// SatisfiesFullRange is false when the file ended before To while it
	// may still receive entries inside the range.
	SatisfiesFullRange bool
}

// Scanner reads entries out of monthly log files.
type Scanner struct {
	parser *logparse.Parser
	now    func() time.Time
	log    *slog.Logger
}

// NewScanner creates a Scanner. nil arguments take defaults.
func NewScanner(parser *logparse.Parser, now func() time.Time, log *slog.Logger) *Scanner {
	if parser == nil {
		parser = logparse.New(nil)
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{parser: parser, now: now, log: log}
}

// Scan returns the entries of the file in [p.From, p.To] that match p,
// ordered by timestamp. src reads the file and length bounds it. Reading
// starts at the latest indexed day not after p.From, or at the start of
// the file when the index has no such day, and stops at the first entry
// past p.To.
func (s *Scanner) Scan(ctx context.Context, src io.ReaderAt, length int64, id logfile.Identity, index heuristics.Result, p Params) (Result, error) {
	if !id.Overlaps(p.From, p.To) {
		return Result{SatisfiesFullRange: true}, nil
	}

	loc := s.parser.Location()
	fromDay := 1
	if !p.From.Before(id.Start()) {
		fromDay = p.From.In(loc).Day()
	}

	tracker := heuristics.NewTracker(id)
	var offset int64
	line := 0
	if seed, ok := index.Floor(fromDay); ok && seed.Offset <= length {
		offset, line = seed.Offset, seed.Line
		tracker.Seed(seed.Day)
	}

	lr := logfile.NewLineReader(io.NewSectionReader(src, offset, length-offset), offset, line)
	var (
		entries  []logparse.Entry
		beyondTo bool
		read     int
	)
	for {
		if read%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		raw, ok, err := lr.Next()
		if err != nil {
			return Result{}, fmt.Errorf("scan: read %s: %w", id, err)
		}
		if !ok {
			break
		}
		read++

		if date, ok := s.parser.Header(raw); ok {
			tracker.Header(date)
			continue
		}
		clock, ok := s.parser.Clock(raw)
		if !ok {
			continue
		}
		if _, problem := tracker.Stamp(clock); problem != "" {
			continue
		}
		e, _ := s.parser.Entry(tracker.Date(loc), raw)
		if e.Timestamp.After(p.To) {
			beyondTo = true
			break
		}
		if !p.InRange(e.Timestamp) || !p.Match(e) {
			continue
		}
		entries = append(entries, e)
	}

	slices.SortStableFunc(entries, func(a, b logparse.Entry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	s.log.Debug("scanned log file", "file", id.FullPath, "from_offset", offset, "lines", read, "matches", len(entries), "beyond_to", beyondTo)

	return Result{
		Entries:            entries,
		SatisfiesFullRange: beyondTo || !id.IsCurrentMonth(s.now()),
	}, nil
}
