// Package history is the query facade over a character's monthly logs. It
// discovers the files a search touches, keeps their day indexes current and
// scans them, running identical concurrent searches only once.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/heuristics"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/jobs"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logging"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logparse"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/persist"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/scan"
)

// ErrSourceUnavailable is returned when a log file needed by a query cannot
// be opened or is not a valid monthly log.
var ErrSourceUnavailable = errors.New("history: log source unavailable")

// Options configures a Service. Catalog and Library are required.
type Options struct {
	Catalog *logfile.Catalog
	Opener  logfile.Opener
	// Library stores day indexes. The Service owns it from New on and
	// closes it in Close.
	Library *persist.Library
	Bus     *events.Bus
	Parser  *logparse.Parser
	Now     func() time.Time
	Logger  *slog.Logger
}

// Service answers history queries.
type Service struct {
	catalog *logfile.Catalog
	opener  logfile.Opener
	lib     *persist.Library
	cache   *heuristics.Cache
	scanner *scan.Scanner
	now     func() time.Time
	log     *slog.Logger

	scans   *jobs.Runner[scan.Key, scan.Result]
	indexes *jobs.Runner[string, heuristics.Result]
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Catalog == nil {
		return nil, errors.New("history: catalog is required")
	}
	if opts.Library == nil {
		return nil, errors.New("history: library is required")
	}
	if opts.Opener == nil {
		opts.Opener = logfile.OSOpener{}
	}
	if opts.Parser == nil {
		opts.Parser = logparse.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var pub heuristics.Publisher
	if opts.Bus != nil {
		pub = opts.Bus
	}
	extractor := heuristics.NewExtractor(opts.Parser, opts.Now, logging.ForComponent(opts.Logger, logging.CompExtractor))
	cache, err := heuristics.NewCache(opts.Library, extractor, pub, opts.Now, logging.ForComponent(opts.Logger, logging.CompCache))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return &Service{
		catalog: opts.Catalog,
		opener:  opts.Opener,
		lib:     opts.Library,
		cache:   cache,
		scanner: scan.NewScanner(opts.Parser, opts.Now, logging.ForComponent(opts.Logger, logging.CompScanner)),
		now:     opts.Now,
		log:     logging.ForComponent(opts.Logger, logging.CompHistory),
		scans:   jobs.NewRunner[scan.Key, scan.Result](),
		indexes: jobs.NewRunner[string, heuristics.Result](),
	}, nil
}

// Catalog returns the file catalog the service searches.
func (s *Service) Catalog() *logfile.Catalog {
	return s.catalog
}

// Scan returns the entries matching p in timestamp order.
func (s *Service) Scan(ctx context.Context, p scan.Params) ([]logparse.Entry, error) {
	res, err := s.ScanResult(ctx, p)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// ScanResult is Scan with the completeness flag. Concurrent calls with
// equal parameters share one execution; a caller whose ctx ends detaches
// with ctx.Err() without affecting the others.
func (s *Service) ScanResult(ctx context.Context, p scan.Params) (scan.Result, error) {
	if err := p.Validate(); err != nil {
		return scan.Result{}, err
	}
	return s.scans.Run(ctx, p.Key(), func(ctx context.Context) (scan.Result, error) {
		return s.scan(ctx, p)
	})
}

// Outcome is the result of an asynchronous scan.
type Outcome struct {
	Result scan.Result
	Err    error
}

// ScanAsync runs ScanResult in the background. The channel receives exactly
// one Outcome and is then closed.
func (s *Service) ScanAsync(ctx context.Context, p scan.Params) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := s.ScanResult(ctx, p)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

func (s *Service) scan(ctx context.Context, p scan.Params) (scan.Result, error) {
	files, err := s.catalog.Files(p.Character, p.LogType)
	if err != nil {
		return scan.Result{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	// Data after now cannot be on disk yet.
	res := scan.Result{SatisfiesFullRange: !p.To.After(s.now())}
	scanned := 0
	for _, id := range files {
		if !id.Overlaps(p.From, p.To) {
			continue
		}
		r, err := s.scanFile(ctx, id, p)
		if err != nil {
			return scan.Result{}, err
		}
		scanned++
		res.Entries = append(res.Entries, r.Entries...)
		res.SatisfiesFullRange = res.SatisfiesFullRange && r.SatisfiesFullRange
	}
	s.log.Debug("scan finished", "character", p.Character, "log_type", p.LogType,
		"files", scanned, "entries", len(res.Entries), "complete", res.SatisfiesFullRange)
	return res, nil
}

// scanFile opens the file once; fingerprinting, indexing and scanning all
// read through that handle.
func (s *Service) scanFile(ctx context.Context, id logfile.Identity, p scan.Params) (scan.Result, error) {
	f, length, err := s.open(id)
	if err != nil {
		return scan.Result{}, err
	}
	defer f.Close()
	if length == 0 {
		s.log.Debug("skipping empty log file", "file", id.FullPath)
		return scan.Result{SatisfiesFullRange: !id.IsCurrentMonth(s.now())}, nil
	}

	idx, err := s.index(ctx, id, f, length)
	if err != nil {
		return scan.Result{}, err
	}
	return s.scanner.Scan(ctx, f, length, id, idx, p)
}

// Index returns a valid day index of the monthly file at path.
func (s *Service) Index(ctx context.Context, path string) (heuristics.Result, error) {
	id, err := logfile.Parse(path)
	if err != nil {
		return heuristics.Result{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return s.indexes.Run(ctx, id.ObjectID(), func(ctx context.Context) (heuristics.Result, error) {
		f, length, err := s.open(id)
		if err != nil {
			return heuristics.Result{}, err
		}
		defer f.Close()
		return s.index(ctx, id, f, length)
	})
}

// Refresh brings the day index of the file at path up to date. Empty files
// are left alone.
func (s *Service) Refresh(ctx context.Context, path string) error {
	_, err := s.Index(ctx, path)
	if errors.Is(err, heuristics.ErrEmptyFile) {
		return nil
	}
	return err
}

func (s *Service) open(id logfile.Identity) (logfile.File, int64, error) {
	f, err := s.opener.Open(id.FullPath)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, id, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, id, err)
	}
	return f, info.Size(), nil
}

func (s *Service) index(ctx context.Context, id logfile.Identity, f logfile.File, length int64) (heuristics.Result, error) {
	if length == 0 {
		return heuristics.Result{}, fmt.Errorf("%w: %w: %s", ErrSourceUnavailable, heuristics.ErrEmptyFile, id)
	}
	sig, err := logfile.Fingerprint(f, length)
	if err != nil {
		return heuristics.Result{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	idx, err := s.cache.GetValidIndex(ctx, id, f, length, sig)
	if errors.Is(err, heuristics.ErrInvalidLogFile) {
		return heuristics.Result{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return idx, err
}

// Close flushes pending index records and closes the store.
func (s *Service) Close() error {
	return s.lib.Close()
}
