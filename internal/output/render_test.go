package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/heuristics"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logparse"
)

func sampleEntries() []logparse.Entry {
	return []logparse.Entry{
		{
			Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.Local),
			Raw:       "[10:00:00] <Bob> hello",
			Source:    "Bob",
			Content:   "hello",
		},
		{
			Timestamp: time.Date(2026, 8, 2, 0, 0, 5, 0, time.Local),
			Raw:       "[00:00:05] You feel rested.",
			Content:   "You feel rested.",
		},
	}
}

func sampleIdentity(t *testing.T) logfile.Identity {
	t.Helper()
	id, err := logfile.Parse(filepath.Join(t.TempDir(), "players", "Tester", "logs", "_Event.2026-08.txt"))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func sampleResult() heuristics.Result {
	return heuristics.Result{
		Days: []heuristics.Day{
			{Day: 1, Offset: 0, Line: 0, Lines: 3, Certain: true},
			{Day: 2, Offset: 120, Line: 3, Lines: -1, Certain: false},
		},
		Stats: heuristics.Stats{Lines: 5, Malformed: 1},
	}
}

func TestTextEntries(t *testing.T) {
	tests := []struct {
		name     string
		entries  []logparse.Entry
		complete bool
		want     string
	}{
		{
			name:     "open range",
			entries:  sampleEntries(),
			complete: false,
			want: "2026-08-01 10:00:00 <Bob> hello\n" +
				"2026-08-02 00:00:05 You feel rested.\n" +
				"2 entries (range still open, more entries may follow)\n",
		},
		{
			name:     "single entry complete",
			entries:  sampleEntries()[1:],
			complete: true,
			want:     "2026-08-02 00:00:05 You feel rested.\n1 entry\n",
		},
		{
			name:     "nothing found",
			complete: true,
			want:     "0 entries\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewText(&buf, false).Entries(tt.entries, tt.complete); err != nil {
				t.Fatal(err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("got:\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestTextColorKeepsText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewText(&buf, true).Entries(sampleEntries(), true); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2026-08-01 10:00:00", "<Bob>", "hello", "2 entries"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("colored output missing %q: %q", want, buf.String())
		}
	}
}

func TestTextIndex(t *testing.T) {
	var buf bytes.Buffer
	id := sampleIdentity(t)
	if err := NewText(&buf, false).Index(id, sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	wants := []string{
		"Tester/_Event.2026-08.txt\n",
		fmt.Sprintf("%5d %10d %8d %7s\n", 1, 0, 0, "3"),
		fmt.Sprintf("%5d %10d %8d %7s  (still being written)\n", 2, 120, 3, "?"),
		"2 days (5 lines read, 1 malformed)\n",
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextFiles(t *testing.T) {
	var buf bytes.Buffer
	id := sampleIdentity(t)
	if err := NewText(&buf, false).Files([]logfile.Identity{id}); err != nil {
		t.Fatal(err)
	}
	want := "2026-08  " + id.FullPath + "\n1 file\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextEvent(t *testing.T) {
	var buf bytes.Buffer
	msg := events.LogFilesChanged{Character: "Tester", Paths: []string{"/x/_Event.2026-08.txt"}}
	if err := NewText(&buf, false).Event(msg); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "✎ "+msg.String()+"\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestJSONEntries(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, true, false).Entries(sampleEntries(), false); err != nil {
		t.Fatal(err)
	}
	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0]["source"] != "Bob" || lines[0]["content"] != "hello" {
		t.Errorf("first entry = %v", lines[0])
	}
	if _, ok := lines[1]["source"]; ok {
		t.Errorf("empty source should be omitted: %v", lines[1])
	}
	summary, ok := lines[2]["summary"].(map[string]any)
	if !ok || summary["count"] != float64(2) || summary["complete"] != false {
		t.Errorf("summary = %v", lines[2])
	}
}

func TestJSONIndexAndFiles(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, true, false)
	id := sampleIdentity(t)
	if err := r.Index(id, heuristics.Result{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Files([]logfile.Identity{id}); err != nil {
		t.Fatal(err)
	}
	if err := r.Event(events.HeuristicsRefreshed{Path: id.FullPath, Character: "Tester", LogType: "_Event", Full: true, Days: 2}); err != nil {
		t.Fatal(err)
	}

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if days, ok := lines[0]["days"].([]any); !ok || len(days) != 0 {
		t.Errorf("empty index should encode days as []: %v", lines[0])
	}
	if lines[1]["character"] != "Tester" || lines[1]["log_type"] != "_Event" || lines[1]["month"] != float64(8) {
		t.Errorf("file line = %v", lines[1])
	}
	if lines[2]["kind"] != events.KindHeuristicsRefreshed {
		t.Errorf("event line = %v", lines[2])
	}
}
