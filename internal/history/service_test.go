package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/heuristics"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/persist"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/scan"
)

var now = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.Local)

func at(month time.Month, day, h, m int) time.Time {
	return time.Date(2026, month, day, h, m, 0, 0, time.Local)
}

// countingOpener counts opens per path. While gate is non-nil, Open blocks
// until it is closed.
type countingOpener struct {
	mu    sync.Mutex
	opens map[string]int
	gate  chan struct{}
}

func newCountingOpener() *countingOpener {
	return &countingOpener{opens: make(map[string]int)}
}

func (o *countingOpener) Open(path string) (logfile.File, error) {
	o.mu.Lock()
	o.opens[filepath.Base(path)]++
	gate := o.gate
	o.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (o *countingOpener) count(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[name]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testEnv struct {
	root   string
	state  string
	opener *countingOpener
	bus    *events.Bus
	msgs   chan events.Message
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		root:   root,
		state:  filepath.Join(root, "state"),
		opener: newCountingOpener(),
		bus:    events.NewBus(nil),
		msgs:   make(chan events.Message, 64),
	}
	env.bus.Subscribe(events.HandlerFunc(func(m events.Message) { env.msgs <- m }))
	return env
}

func (env *testEnv) writeLog(t *testing.T, name, content string) string {
	t.Helper()
	dir := filepath.Join(env.root, "players", "Tester", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (env *testEnv) service(t *testing.T) *Service {
	t.Helper()
	backend, err := persist.NewFlatFiles(env.state, ".json")
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(Options{
		Catalog: logfile.NewCatalog(env.root, ""),
		Opener:  env.opener,
		Library: persist.NewLibrary(backend, nil, nil),
		Bus:     env.bus,
		Now:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

const augustLog = "Logging started 2026-08-01\n" +
	"[10:00:00] You mine some rock.\n" +
	"Logging started 2026-08-20\n" +
	"[10:00:00] <Alice> hello\n"

const octoberLog = "Logging started 2026-10-14\n" +
	"[10:00:00] You mine some iron.\n" +
	"Logging started 2026-10-15\n" +
	"[09:00:00] <Bob> morning\n" +
	"[11:00:00] You mine some tin.\n"

func params(from, to time.Time) scan.Params {
	return scan.Params{Character: "Tester", LogType: "_Event", From: from, To: to}
}

func TestScanAcrossMonths(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "_Event.2026-08.txt", augustLog)
	env.writeLog(t, "_Event.2026-10.txt", octoberLog)
	env.writeLog(t, "_Skills.2026-10.txt", "Logging started 2026-10-15\n[10:00:00] skill gain\n")
	svc := env.service(t)
	defer svc.Close()

	res, err := svc.ScanResult(context.Background(), params(at(time.August, 1, 0, 0), at(time.October, 15, 10, 0)))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range res.Entries {
		got = append(got, e.Content)
	}
	want := []string{"You mine some rock.", "hello", "You mine some iron.", "morning"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %q, want %q", got, want)
	}
	if !res.SatisfiesFullRange {
		t.Error("range ending before the last written entry should be satisfied")
	}
	if env.opener.count("_Skills.2026-10.txt") != 0 {
		t.Error("a file of another log type was opened")
	}
}

func TestScanIntoFutureIsIncomplete(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "_Event.2026-10.txt", octoberLog)
	svc := env.service(t)
	defer svc.Close()

	res, err := svc.ScanResult(context.Background(), params(at(time.October, 1, 0, 0), at(time.October, 31, 0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if res.SatisfiesFullRange {
		t.Error("range reaching into the future reported as complete")
	}
	if len(res.Entries) != 3 {
		t.Errorf("got %d entries, want 3", len(res.Entries))
	}
}

func TestConcurrentIdenticalScansReadOnce(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "_Event.2026-08.txt", augustLog)
	svc := env.service(t)
	defer svc.Close()

	gate := make(chan struct{})
	env.opener.gate = gate

	p := params(at(time.August, 1, 0, 0), at(time.August, 31, 0, 0))
	a := svc.ScanAsync(context.Background(), p)
	b := svc.ScanAsync(context.Background(), p)

	waitFor(t, "both scans to attach", func() bool { return svc.scans.Attached(p.Key()) == 2 })
	close(gate)

	ra, rb := <-a, <-b
	if ra.Err != nil || rb.Err != nil {
		t.Fatalf("errors: %v, %v", ra.Err, rb.Err)
	}
	if !reflect.DeepEqual(ra.Result, rb.Result) {
		t.Errorf("results differ:\n%+v\n%+v", ra.Result, rb.Result)
	}
	if n := env.opener.count("_Event.2026-08.txt"); n != 1 {
		t.Errorf("file opened %d times, want 1", n)
	}
	if len(ra.Result.Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(ra.Result.Entries))
	}
}

func TestCancelledScanDetaches(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "_Event.2026-08.txt", augustLog)
	svc := env.service(t)
	defer svc.Close()

	gate := make(chan struct{})
	env.opener.gate = gate

	p := params(at(time.August, 1, 0, 0), at(time.August, 31, 0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	quitter := svc.ScanAsync(ctx, p)
	stayer := svc.ScanAsync(context.Background(), p)
	waitFor(t, "both scans to attach", func() bool { return svc.scans.Attached(p.Key()) == 2 })

	cancel()
	if out := <-quitter; !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("cancelled scan err = %v, want context.Canceled", out.Err)
	}
	close(gate)
	out := <-stayer
	if out.Err != nil || len(out.Result.Entries) != 2 {
		t.Errorf("remaining scan = %+v, %v", out.Result, out.Err)
	}
}

func TestInvalidSourceFails(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "_Event.2026-08.txt", "this is not a game log\n")
	svc := env.service(t)
	defer svc.Close()

	_, err := svc.Scan(context.Background(), params(at(time.August, 1, 0, 0), at(time.August, 31, 0, 0)))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
	if !errors.Is(err, heuristics.ErrInvalidLogFile) {
		t.Errorf("err = %v, want it to wrap ErrInvalidLogFile", err)
	}
}

func TestEmptyFileIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.writeLog(t, "_Event.2026-08.txt", augustLog)
	empty := env.writeLog(t, "_Event.2026-09.txt", "")
	svc := env.service(t)
	defer svc.Close()

	entries, err := svc.Scan(context.Background(), params(at(time.August, 1, 0, 0), at(time.September, 30, 0, 0)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
	if err := svc.Refresh(context.Background(), empty); err != nil {
		t.Errorf("Refresh of an empty file: %v", err)
	}
	if _, err := svc.Index(context.Background(), empty); !errors.Is(err, heuristics.ErrEmptyFile) {
		t.Errorf("Index of an empty file err = %v, want ErrEmptyFile", err)
	}
}

func TestIndexSurvivesRestart(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeLog(t, "_Event.2026-08.txt", augustLog)

	svc := env.service(t)
	first, err := svc.Index(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-env.msgs:
		if r, ok := m.(events.HeuristicsRefreshed); !ok || !r.Full {
			t.Errorf("message = %#v, want full refresh", m)
		}
	default:
		t.Fatal("no refresh message published")
	}

	svc2 := env.service(t)
	defer svc2.Close()
	second, err := svc2.Index(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Days, second.Days) {
		t.Errorf("days after restart = %+v, want %+v", second.Days, first.Days)
	}
	select {
	case m := <-env.msgs:
		t.Errorf("unchanged file was re-indexed: %v", m)
	default:
	}
}

func TestScanRejectsBadParams(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(t)
	defer svc.Close()

	if _, err := svc.Scan(context.Background(), scan.Params{Character: "Tester"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestIndexRejectsForeignFileName(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(t)
	defer svc.Close()

	_, err := svc.Index(context.Background(), filepath.Join(env.root, "notes.txt"))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}
