// Package heuristics builds and caches day indexes ("heuristics") of monthly
// log files: for every calendar day, the byte offset where its entries start.
package heuristics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logparse"
)

var (
	// ErrInvalidLogFile is the domain error for files that are not usable
	// monthly logs. The errors below wrap it.
	ErrInvalidLogFile = errors.New("heuristics: invalid log file")
	ErrEmptyFile      = fmt.Errorf("%w: file is empty", ErrInvalidLogFile)
	ErrNoDayHeaders   = fmt.Errorf("%w: no day headers found", ErrInvalidLogFile)
)

// ctxCheckEvery is how many lines are read between cancellation checks.
const ctxCheckEvery = 4096

// Extractor builds day indexes in one forward pass over a file.
type Extractor struct {
	parser *logparse.Parser
	now    func() time.Time
	log    *slog.Logger
}

// NewExtractor creates an Extractor. now decides which month is current;
// nil means time.Now.
func NewExtractor(parser *logparse.Parser, now func() time.Time, log *slog.Logger) *Extractor {
	if parser == nil {
		parser = logparse.New(nil)
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{parser: parser, now: now, log: log}
}

// Extract indexes the file read from r, which must be positioned at offset
// zero. Empty input and input without a single usable day header fail with
// errors wrapping ErrInvalidLogFile.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, id logfile.Identity) (Result, error) {
	b := e.newBuilder(id, logfile.NewLineReader(r, 0, 0))
	if err := b.run(ctx); err != nil {
		return Result{}, err
	}
	if len(b.days) == 0 {
		if b.stats.Lines == 0 {
			return Result{}, fmt.Errorf("%w: %s", ErrEmptyFile, id)
		}
		return Result{}, fmt.Errorf("%w: %s", ErrNoDayHeaders, id)
	}
	return b.result(), nil
}

// ExtractFrom continues indexing from a known day. r must be positioned at
// seed.Offset. The returned days start with seed (re-measured) followed by
// any days that begin after it.
func (e *Extractor) ExtractFrom(ctx context.Context, r io.Reader, id logfile.Identity, seed Day) (Result, error) {
	b := e.newBuilder(id, logfile.NewLineReader(r, seed.Offset, seed.Line))
	b.tracker.Seed(seed.Day)
	b.days = append(b.days, Day{Day: seed.Day, Offset: seed.Offset, Line: seed.Line})
	if err := b.run(ctx); err != nil {
		return Result{}, err
	}
	return b.result(), nil
}

func (e *Extractor) newBuilder(id logfile.Identity, lr *logfile.LineReader) *builder {
	return &builder{
		ext:     e,
		id:      id,
		lr:      lr,
		tracker: NewTracker(id),
		current: id.IsCurrentMonth(e.now()),
	}
}

type builder struct {
	ext     *Extractor
	id      logfile.Identity
	lr      *logfile.LineReader
	tracker *Tracker
	current bool

	days  []Day
	stats Stats
}

func (b *builder) run(ctx context.Context) error {
	for {
		if b.stats.Lines%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line, ok, err := b.lr.Next()
		if err != nil {
			return fmt.Errorf("heuristics: read %s: %w", b.id, err)
		}
		if !ok {
			break
		}
		b.stats.Lines++
		b.consume(line)
	}
	b.finish()
	return nil
}

func (b *builder) consume(line string) {
	p := b.ext.parser
	var opened bool
	var problem string
	if date, ok := p.Header(line); ok {
		opened, problem = b.tracker.Header(date)
	} else if clock, ok := p.Clock(line); ok {
		opened, problem = b.tracker.Stamp(clock)
	} else if line != "" {
		problem = "unrecognised line"
	}

	switch {
	case problem != "":
		b.malformed(line, problem)
	case opened:
		b.open(b.tracker.Day())
	}
}

// open starts a new day at the line just read, closing the previous one.
func (b *builder) open(day int) {
	line := b.lr.LastLineNumber()
	if n := len(b.days); n > 0 {
		prev := &b.days[n-1]
		prev.Lines = line - prev.Line
		prev.Certain = true
	}
	b.days = append(b.days, Day{Day: day, Offset: b.lr.LastLineStart(), Line: line})
}

func (b *builder) finish() {
	n := len(b.days)
	if n == 0 {
		return
	}
	last := &b.days[n-1]
	if b.current {
		last.Lines = -1
		last.Certain = false
		return
	}
	last.Lines = b.lr.LastLineNumber() + 1 - last.Line
	last.Certain = true
}

func (b *builder) malformed(line string, reason string) {
	b.stats.Malformed++
	b.ext.log.Debug("skipping log line",
		"file", b.id.FullPath, "line", b.lr.LastLineNumber()+1, "reason", reason, "text", truncate(line, 80))
}

func (b *builder) result() Result {
	return Result{Days: b.days, Stats: b.stats}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
