package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logging"
)

type fakeRefresher struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
}

func (f *fakeRefresher) Refresh(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.fail[filepath.Base(path)] {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRefresher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type capture struct {
	mu   sync.Mutex
	msgs []events.LogFilesChanged
}

func (c *capture) Publish(m events.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m.(events.LogFilesChanged))
}

func (c *capture) all() []events.LogFilesChanged {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.LogFilesChanged(nil), c.msgs...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func logsDir(t *testing.T, root, character string) string {
	t.Helper()
	dir := filepath.Join(root, "players", character, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func TestChangedCoalescesIntoOneRun(t *testing.T) {
	root := t.TempDir()
	dir := logsDir(t, root, "Tester")
	ref := &fakeRefresher{}
	pub := &capture{}

	w, err := New(Options{Dirs: []string{dir}, Refresher: ref, Publisher: pub, Debounce: 20 * time.Millisecond, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}

	event := filepath.Join(dir, "_Event.2026-08.txt")
	skills := filepath.Join(dir, "_Skills.2026-08.txt")
	for i := 0; i < 10; i++ {
		w.Changed(event)
	}
	w.Changed(skills)
	w.Changed(filepath.Join(dir, "_Event.2026-08-01.txt")) // daily file: ignored
	w.Changed(filepath.Join(dir, "notes.txt"))
	start(t, w)

	waitFor(t, func() bool { return len(pub.all()) == 1 })
	time.Sleep(100 * time.Millisecond)

	calls := ref.calls()
	if len(calls) != 2 || calls[0] != event || calls[1] != skills {
		t.Errorf("refresh calls = %v, want [%s %s]", calls, event, skills)
	}
	msgs := pub.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Character != "Tester" || len(msgs[0].Paths) != 2 {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestRefreshGroupsByCharacterAndSkipsFailures(t *testing.T) {
	root := t.TempDir()
	alice := logsDir(t, root, "Alice")
	bob := logsDir(t, root, "Bob")
	ref := &fakeRefresher{fail: map[string]bool{"_Skills.2026-08.txt": true}}
	pub := &capture{}

	w, err := New(Options{Dirs: []string{alice, bob}, Refresher: ref, Publisher: pub, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	if got := w.Dirs(); len(got) != 2 {
		t.Errorf("Dirs() = %v, want both folders", got)
	}

	w.Changed(filepath.Join(bob, "_Event.2026-08.txt"))
	w.Changed(filepath.Join(alice, "_Event.2026-08.txt"))
	w.Changed(filepath.Join(alice, "_Skills.2026-08.txt"))
	start(t, w)

	waitFor(t, func() bool { return len(ref.calls()) == 3 })
	waitFor(t, func() bool { return len(pub.all()) == 2 })

	msgs := pub.all()
	if msgs[0].Character != "Alice" || len(msgs[0].Paths) != 1 {
		t.Errorf("first message = %+v, want Alice with the event log only", msgs[0])
	}
	if msgs[1].Character != "Bob" || len(msgs[1].Paths) != 1 {
		t.Errorf("second message = %+v, want Bob", msgs[1])
	}
}

func TestRunPicksUpFileWrites(t *testing.T) {
	root := t.TempDir()
	dir := logsDir(t, root, "Tester")
	ref := &fakeRefresher{}

	w, err := New(Options{Dirs: []string{dir}, Refresher: ref, Debounce: 10 * time.Millisecond, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	path := filepath.Join(dir, "_Event.2026-08.txt")
	if err := os.WriteFile(path, []byte("Logging started 2026-08-01\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(ref.calls()) > 0 })
	for _, p := range ref.calls() {
		if filepath.Base(p) != "_Event.2026-08.txt" {
			t.Errorf("unexpected refresh of %s", p)
		}
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(Options{Dirs: []string{t.TempDir()}}); err == nil {
		t.Error("expected error without refresher")
	}
	missing := filepath.Join(t.TempDir(), "gone")
	if _, err := New(Options{Dirs: []string{missing}, Refresher: &fakeRefresher{}, Logger: logging.Discard()}); err == nil {
		t.Error("expected error when no folder can be watched")
	}
}

func TestRunReturnsWhenWatcherCloses(t *testing.T) {
	dir := logsDir(t, t.TempDir(), "Tester")
	w, err := New(Options{Dirs: []string{dir}, Refresher: &fakeRefresher{}, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	if err := w.fs.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after the watcher closed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the watcher closed")
	}
}

func TestRunFollowsNewCharacterFolders(t *testing.T) {
	root := t.TempDir()
	players := filepath.Join(root, "players")
	existing := logsDir(t, root, "Alice")
	discover := func() ([]string, error) {
		return filepath.Glob(filepath.Join(players, "*", "logs"))
	}
	ref := &fakeRefresher{}

	w, err := New(Options{
		Discover:  discover,
		Roots:     []string{players},
		Refresher: ref,
		Debounce:  10 * time.Millisecond,
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := w.Dirs(); len(got) != 1 || got[0] != existing {
		t.Fatalf("Dirs() = %v, want [%s]", got, existing)
	}
	start(t, w)

	fresh := logsDir(t, root, "Newcomer")
	waitFor(t, func() bool { return len(w.Dirs()) == 2 })

	path := filepath.Join(fresh, "_Event.2026-09.txt")
	if err := os.WriteFile(path, []byte("Logging started 2026-09-01\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		for _, p := range ref.calls() {
			if p == path {
				return true
			}
		}
		return false
	})
}

func TestRunFollowsLogsFolderInsideExistingCharacter(t *testing.T) {
	root := t.TempDir()
	players := filepath.Join(root, "players")
	if err := os.MkdirAll(filepath.Join(players, "Late"), 0755); err != nil {
		t.Fatal(err)
	}
	discover := func() ([]string, error) {
		return filepath.Glob(filepath.Join(players, "*", "logs"))
	}
	ref := &fakeRefresher{}

	w, err := New(Options{Discover: discover, Roots: []string{players}, Refresher: ref, Debounce: 10 * time.Millisecond, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	if got := w.Dirs(); len(got) != 0 {
		t.Fatalf("Dirs() = %v, want none yet", got)
	}
	start(t, w)

	dir := logsDir(t, root, "Late")
	waitFor(t, func() bool { return len(w.Dirs()) == 1 })
	path := filepath.Join(dir, "_Skills.2026-09.txt")
	if err := os.WriteFile(path, []byte("Logging started 2026-09-01\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(ref.calls()) > 0 })
	if got := ref.calls(); got[0] != path {
		t.Errorf("refresh calls = %v, want %s first", got, path)
	}
}

func TestChangedIgnoresUnwatchedFolders(t *testing.T) {
	root := t.TempDir()
	watched := logsDir(t, root, "Alice")
	other := logsDir(t, root, "Bob")
	ref := &fakeRefresher{}

	w, err := New(Options{Dirs: []string{watched}, Refresher: ref, Debounce: 10 * time.Millisecond, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	w.Changed(filepath.Join(other, "_Event.2026-08.txt"))
	w.Changed(filepath.Join(watched, "_Event.2026-08.txt"))
	start(t, w)

	waitFor(t, func() bool { return len(ref.calls()) > 0 })
	time.Sleep(50 * time.Millisecond)
	if got := ref.calls(); len(got) != 1 || filepath.Dir(got[0]) != watched {
		t.Errorf("refresh calls = %v, want only the watched folder", got)
	}
}
