package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/history"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logging"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/output"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/scan"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/tui"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/watch"
)

// timeLayouts are the absolute forms accepted by --from and --to.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeFlag interprets a range bound in local time. Besides absolute
// dates it accepts "now", "today" and signed durations relative to now. A
// bare date used as an end bound means the last instant of that day.
func parseTimeFlag(s string, end bool, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "now":
		return now, nil
	case "today":
		y, m, d := now.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
		if end {
			return start.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return start, nil
	}

	if s[0] == '-' || s[0] == '+' {
		if d, err := time.ParseDuration(s); err == nil {
			return now.Add(d), nil
		}
	}

	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		if end && layout == "2006-01-02" {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date, time or duration", s)
}

func runScan(ctx context.Context, svc *history.Service, p scan.Params, r output.Renderer) error {
	res, err := svc.ScanResult(ctx, p)
	if err != nil {
		return err
	}
	return r.Entries(res.Entries, res.SatisfiesFullRange)
}

func runIndex(ctx context.Context, svc *history.Service, path string, r output.Renderer) error {
	id, err := logfile.Parse(path)
	if err != nil {
		return err
	}
	res, err := svc.Index(ctx, id.FullPath)
	if err != nil {
		return err
	}
	return r.Index(id, res)
}

func runFiles(catalog *logfile.Catalog, character, logType string, r output.Renderer) error {
	ids, err := catalog.Files(character, logType)
	if err != nil {
		return err
	}
	return r.Files(ids)
}

// runWatch refreshes indexes as the game writes and prints every
// notification until ctx is cancelled.
// newWatcher follows every character log folder and the players folder,
// where new characters appear.
func newWatcher(a *app) (*watch.Watcher, error) {
	catalog := a.svc.Catalog()
	dirs, err := catalog.LogDirs()
	if err != nil {
		return nil, err
	}
	var roots []string
	players := filepath.Join(catalog.Root(), "players")
	if info, err := os.Stat(players); err == nil && info.IsDir() {
		roots = append(roots, players)
	}
	if len(dirs) == 0 && len(roots) == 0 {
		return nil, fmt.Errorf("no character log folders found under %s", catalog.Root())
	}

	return watch.New(watch.Options{
		Discover:     catalog.LogDirs,
		Roots:        roots,
		Refresher:    a.svc,
		Publisher:    a.bus,
		Debounce:     time.Duration(a.cfg.Watch.DebounceMS) * time.Millisecond,
		MaxPerSecond: a.cfg.Watch.MaxRefreshPerSecond,
		Logger:       logging.ForComponent(a.log, logging.CompWatch),
	})
}

// runWatch prints notifications as lines until ctx is cancelled.
func runWatch(ctx context.Context, a *app, r output.Renderer) error {
	w, err := newWatcher(a)
	if err != nil {
		return err
	}

	sub := a.bus.Subscribe(events.HandlerFunc(func(m events.Message) {
		if err := r.Event(m); err != nil {
			a.log.Warn("cannot print notification", "error", err)
		}
	}))
	defer sub.Close()

	a.log.Info("watching log folders", "folders", len(w.Dirs()))
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runWatchTUI shows notifications in the interactive display. Quitting the
// display stops the watcher.
func runWatchTUI(ctx context.Context, a *app) error {
	w, err := newWatcher(a)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed := make(chan events.Message, 128)
	sub := a.bus.Subscribe(events.HandlerFunc(func(m events.Message) {
		select {
		case feed <- m:
		default:
		}
	}))
	defer sub.Close()

	// The watcher publishes only while Run is active, so feed can be
	// closed once it returns.
	runErr := make(chan error, 1)
	go func() {
		err := w.Run(ctx)
		close(feed)
		runErr <- err
	}()

	program := tea.NewProgram(tui.New(feed, w.Dirs()), tea.WithAltScreen(), tea.WithContext(ctx))
	_, tuiErr := program.Run()
	cancel()
	err = <-runErr

	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", tuiErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
