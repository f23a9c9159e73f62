package heuristics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/jobs"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/persist"
)

// CollectionName is the persist collection holding day indexes.
const CollectionName = "heuristics"

// recordVersion 2 added per-day line numbers and line counts.
const recordVersion = 2

// Record is the persisted day index of one monthly file, keyed by
// logfile.Identity.ObjectID.
type Record struct {
	persist.Entity `yaml:",inline"`
	FileLength     int64  `json:"file_length" yaml:"file_length"`
	Signature      string `json:"signature" yaml:"signature"`
	Days           []Day  `json:"days" yaml:"days"`
}

// RecordSchema returns the schema of Record. Version 1 records carry no line
// numbers; ones without days are upgraded in place, the rest are reset so
// the next query rebuilds them.
func RecordSchema() persist.Schema[Record] {
	return persist.Schema[Record]{
		Version: recordVersion,
		Migrations: []persist.Migration[Record]{
			{
				From: 1,
				To:   2,
				When: func(r *Record) bool { return len(r.Days) == 0 },
			},
			{
				From: 1,
				To:   2,
				Apply: func(r *Record) {
					r.FileLength = 0
					r.Signature = ""
					r.Days = nil
				},
			},
		},
	}
}

// Publisher receives refresh notifications. *events.Bus satisfies it.
type Publisher interface {
	Publish(events.Message)
}

// Cache keeps day indexes valid against the files they describe, extracting
// only what changed since the last look.
type Cache struct {
	records   *persist.Collection[Record, *Record]
	extractor *Extractor
	pub       Publisher
	now       func() time.Time
	log       *slog.Logger
	locks     jobs.KeyedMutex[string]
}

// NewCache opens the heuristics collection in lib. pub may be nil.
func NewCache(lib *persist.Library, extractor *Extractor, pub Publisher, now func() time.Time, log *slog.Logger) (*Cache, error) {
	records, err := persist.OpenCollection[Record](lib, CollectionName, RecordSchema())
	if err != nil {
		return nil, fmt.Errorf("heuristics: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{records: records, extractor: extractor, pub: pub, now: now, log: log}, nil
}

// GetValidIndex returns a day index of the file identified by id that is
// valid for its current length and signature. src reads the file; only the
// first length bytes are used.
//
// A missing record, a recorded length beyond the current one, or a signature
// change forces a full extraction. A file that has grown is re-read from the
// start of its last recorded day. An unchanged file is served from the
// record, unless its last day is uncertain and its month has since ended.
// Calls for the same file are serialized.
func (c *Cache) GetValidIndex(ctx context.Context, id logfile.Identity, src io.ReaderAt, length int64, signature string) (Result, error) {
	key := id.ObjectID()
	unlock, err := c.locks.Lock(ctx, key)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	h, err := c.records.Get(key)
	if err != nil {
		return Result{}, fmt.Errorf("heuristics: load record for %s: %w", id, err)
	}
	var rec Record
	h.View(func(r *Record) {
		rec = *r
		rec.Days = cloneDays(r.Days)
	})

	var (
		res  Result
		full bool
	)
	switch {
	case rec.Signature == "" || len(rec.Days) == 0:
		full = true
	case rec.FileLength > length:
		c.log.Warn("log file shrank, rebuilding index", "file", id.FullPath, "recorded", rec.FileLength, "length", length)
		full = true
	case rec.Signature != signature:
		c.log.Warn("log file signature changed, rebuilding index", "file", id.FullPath)
		full = true
	case rec.FileLength == length && !c.closedSinceIndexed(id, rec.Days):
		return Result{Days: rec.Days}, nil
	}

	if full {
		res, err = c.extractor.Extract(ctx, io.NewSectionReader(src, 0, length), id)
	} else {
		res, err = c.extendTail(ctx, id, src, length, rec.Days)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidLogFile) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("heuristics: index %s: %w", id, err)
	}

	h.Update(func(r *Record) {
		r.FileLength = length
		r.Signature = signature
		r.Days = cloneDays(res.Days)
	})
	if err := h.Flush(); err != nil {
		c.log.Error("failed to persist day index", "file", id.FullPath, "err", err)
	}

	c.log.Debug("day index refreshed", "file", id.FullPath, "full", full, "days", len(res.Days), "lines", res.Stats.Lines, "malformed", res.Stats.Malformed)
	if c.pub != nil {
		c.pub.Publish(events.HeuristicsRefreshed{
			Path:      id.FullPath,
			Character: id.Character,
			LogType:   id.LogType,
			Full:      full,
			Days:      len(res.Days),
		})
	}
	return res, nil
}

// closedSinceIndexed reports whether the index ends in an uncertain day of a
// month that is now over, which makes the day final without any new bytes.
func (c *Cache) closedSinceIndexed(id logfile.Identity, days []Day) bool {
	return len(days) > 0 && !days[len(days)-1].Certain && !id.IsCurrentMonth(c.now())
}

func (c *Cache) extendTail(ctx context.Context, id logfile.Identity, src io.ReaderAt, length int64, days []Day) (Result, error) {
	seed := days[len(days)-1]
	tail, err := c.extractor.ExtractFrom(ctx, io.NewSectionReader(src, seed.Offset, length-seed.Offset), id, seed)
	if err != nil {
		return Result{}, err
	}
	merged := make([]Day, 0, len(days)-1+len(tail.Days))
	merged = append(merged, days[:len(days)-1]...)
	merged = append(merged, tail.Days...)
	return Result{Days: merged, Stats: tail.Stats}, nil
}

// Flush writes every pending index record.
func (c *Cache) Flush() error {
	return c.records.FlushAll()
}
