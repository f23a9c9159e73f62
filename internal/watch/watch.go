// Package watch refreshes day indexes when the game appends to its log
// files. Bursts of filesystem events are coalesced into rate-limited refresh
// runs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/jobs"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
)

// Refresher brings the index of one monthly file up to date.
type Refresher interface {
	Refresh(ctx context.Context, path string) error
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(events.Message)
}

// Options configures a Watcher. Refresher is required.
type Options struct {
	Dirs []string // character log folders
	// Discover lists the current log folders. When set it is consulted at
	// start and whenever a folder appears below one of Roots.
	Discover func() ([]string, error)
	// Roots are watched for new character folders (usually players/).
	Roots     []string
	Refresher Refresher
	Publisher Publisher
	// Debounce is the quiet period after the first change of a burst.
	Debounce time.Duration
	// MaxPerSecond caps refresh runs; zero or less means unlimited.
	MaxPerSecond float64
	Logger       *slog.Logger
}

// Watcher follows a set of log folders.
type Watcher struct {
	fs        *fsnotify.Watcher
	trigger   *jobs.Trigger
	refresher Refresher
	pub       Publisher
	discover  func() ([]string, error)
	roots     map[string]bool
	log       *slog.Logger

	mu      sync.Mutex
	logDirs map[string]bool
	pending map[string]logfile.Identity
}

// New starts watching the log folders and roots. Folders that cannot be
// watched are logged and skipped; it fails only if none can be.
func New(opts Options) (*Watcher, error) {
	if opts.Refresher == nil {
		return nil, errors.New("watch: refresher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dirs := opts.Dirs
	if opts.Discover != nil {
		found, err := opts.Discover()
		if err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
		dirs = append(append([]string(nil), dirs...), found...)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		fs:        fsw,
		refresher: opts.Refresher,
		pub:       opts.Publisher,
		discover:  opts.Discover,
		roots:     make(map[string]bool),
		log:       opts.Logger,
		logDirs:   make(map[string]bool),
		pending:   make(map[string]logfile.Identity),
	}
	w.trigger = jobs.NewTrigger(w.refresh, opts.Debounce, opts.MaxPerSecond)

	for _, dir := range dirs {
		w.addLogDir(dir)
	}
	for _, root := range opts.Roots {
		if err := fsw.Add(root); err != nil {
			w.log.Warn("cannot watch folder", "dir", root, "error", err)
			continue
		}
		w.roots[filepath.Clean(root)] = true
		// A character folder may exist before its logs folder does.
		entries, _ := os.ReadDir(root)
		for _, e := range entries {
			if e.IsDir() {
				_ = fsw.Add(filepath.Join(root, e.Name()))
			}
		}
	}

	if len(fsw.WatchList()) == 0 && len(dirs)+len(opts.Roots) > 0 {
		fsw.Close()
		return nil, fmt.Errorf("watch: none of %d folders could be watched", len(dirs)+len(opts.Roots))
	}
	return w, nil
}

// addLogDir starts watching a log folder. It reports whether the folder
// is newly watched.
func (w *Watcher) addLogDir(dir string) bool {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	w.mu.Lock()
	known := w.logDirs[dir]
	w.mu.Unlock()
	if known {
		return false
	}
	if err := w.fs.Add(dir); err != nil {
		w.log.Warn("cannot watch log folder", "dir", dir, "error", err)
		return false
	}
	w.mu.Lock()
	w.logDirs[dir] = true
	w.mu.Unlock()
	return true
}

// Dirs returns the log folders being watched.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	dirs := make([]string, 0, len(w.logDirs))
	for d := range w.logDirs {
		dirs = append(dirs, d)
	}
	w.mu.Unlock()
	sort.Strings(dirs)
	return dirs
}

// Run processes filesystem events until ctx is cancelled or the underlying
// watcher shuts down. It closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.trigger.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
		w.fs.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.folderCreated(event.Name)
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.Changed(event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

// folderCreated follows new character folders below a root and picks up
// log folders that appeared since the last look.
func (w *Watcher) folderCreated(dir string) {
	if w.roots[filepath.Dir(filepath.Clean(dir))] {
		if err := w.fs.Add(dir); err != nil {
			w.log.Warn("cannot watch folder", "dir", dir, "error", err)
		}
	}
	w.rescan()
}

// rescan watches log folders that Discover reports but are not watched
// yet. Monthly files already inside them count as changed.
func (w *Watcher) rescan() {
	if w.discover == nil {
		return
	}
	dirs, err := w.discover()
	if err != nil {
		w.log.Warn("cannot list log folders", "error", err)
		return
	}
	for _, dir := range dirs {
		if !w.addLogDir(dir) {
			continue
		}
		w.log.Info("watching new log folder", "dir", dir)
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			if !e.IsDir() {
				w.Changed(filepath.Join(dir, e.Name()))
			}
		}
	}
}

// Changed records path as modified and schedules a refresh. Paths that are
// not monthly log files inside a watched log folder are ignored.
func (w *Watcher) Changed(path string) {
	id, err := logfile.Parse(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	if !w.logDirs[filepath.Dir(id.FullPath)] {
		w.mu.Unlock()
		return
	}
	w.pending[id.FullPath] = id
	w.mu.Unlock()
	w.trigger.Fire()
}

// take empties the pending set, returning it ordered by character and path.
func (w *Watcher) take() []logfile.Identity {
	w.mu.Lock()
	ids := make([]logfile.Identity, 0, len(w.pending))
	for _, id := range w.pending {
		ids = append(ids, id)
	}
	clear(w.pending)
	w.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Character != ids[j].Character {
			return ids[i].Character < ids[j].Character
		}
		return ids[i].FullPath < ids[j].FullPath
	})
	return ids
}

func (w *Watcher) refresh(ctx context.Context) {
	ids := w.take()
	if len(ids) == 0 {
		return
	}

	byCharacter := make(map[string][]string)
	var order []string
	for _, id := range ids {
		if err := w.refresher.Refresh(ctx, id.FullPath); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("index refresh failed", "path", id.FullPath, "error", err)
			continue
		}
		if _, seen := byCharacter[id.Character]; !seen {
			order = append(order, id.Character)
		}
		byCharacter[id.Character] = append(byCharacter[id.Character], id.FullPath)
	}
	w.log.Debug("refreshed changed logs", "files", len(ids))

	if w.pub == nil {
		return
	}
	for _, c := range order {
		w.pub.Publish(events.LogFilesChanged{Character: c, Paths: byCharacter[c]})
	}
}
