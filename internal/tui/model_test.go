package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
)

func fixedModel(ch chan events.Message) Model {
	m := New(ch, []string{"/game/players/Tester/logs"})
	m.now = func() time.Time { return time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC) }
	return m
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestNew(t *testing.T) {
	m := New(make(chan events.Message), nil)
	if m.width != 80 || m.height != 24 {
		t.Errorf("default size = %dx%d, want 80x24", m.width, m.height)
	}
	if !m.follow {
		t.Error("expected follow mode on")
	}
	if m.Done() {
		t.Error("expected done to be false")
	}
	if m.Init() == nil {
		t.Error("Init should return a command waiting for events")
	}
}

func TestInitDeliversFeed(t *testing.T) {
	ch := make(chan events.Message, 1)
	m := New(ch, nil)

	ch <- events.LogFilesChanged{Character: "Tester", Paths: []string{"/x/_Event.2026-08.txt"}}
	msg := m.Init()()
	if _, ok := msg.(eventMsg); !ok {
		t.Fatalf("Init() produced %T, want eventMsg", msg)
	}

	close(ch)
	if msg := m.Init()(); msg != (feedClosedMsg{}) {
		t.Errorf("closed feed produced %T, want feedClosedMsg", msg)
	}
}

func TestUpdateEvents(t *testing.T) {
	m := fixedModel(make(chan events.Message, 1))

	updated, cmd := m.Update(eventMsg{events.LogFilesChanged{Character: "Tester", Paths: []string{"/x/_Event.2026-08.txt"}}})
	m = updated.(Model)
	if cmd == nil {
		t.Error("an event should produce a command to wait for more")
	}
	updated, _ = m.Update(eventMsg{events.HeuristicsRefreshed{Character: "Tester", LogType: "Event", Full: true, Days: 3}})
	m = updated.(Model)

	if m.changed != 1 || m.refreshed != 1 {
		t.Errorf("counters = %d changed, %d refreshed, want 1 and 1", m.changed, m.refreshed)
	}
	if len(m.lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(m.lines))
	}

	view := m.View()
	for _, want := range []string{
		"12:30:00",
		"Tester: _Event.2026-08.txt changed",
		"Tester Event: index refreshed (full, 3 days)",
		"1 folder",
		"1 changed",
		"1 refreshed",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestViewBeforeFirstEvent(t *testing.T) {
	m := New(make(chan events.Message), []string{"a", "b"})
	view := m.View()
	if !strings.Contains(view, "waiting for the game") {
		t.Errorf("View() should show a waiting hint:\n%s", view)
	}
	if !strings.Contains(view, "2 folders") {
		t.Errorf("View() should count folders:\n%s", view)
	}
}

func TestUpdateQuits(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.Msg
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}},
		{"feed closed", feedClosedMsg{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cmd := New(make(chan events.Message), nil).Update(tt.msg)
			if !isQuit(cmd) {
				t.Error("expected tea.Quit")
			}
		})
	}

	updated, _ := New(make(chan events.Message), nil).Update(feedClosedMsg{})
	if !updated.(Model).Done() {
		t.Error("closed feed should mark the model done")
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m := New(make(chan events.Message), nil)
	updated, cmd := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	if cmd != nil {
		t.Error("window size should not produce a command")
	}
	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
	if m.vp.Width != 120 || m.vp.Height != 40-chromeHeight {
		t.Errorf("viewport = %dx%d, want 120x%d", m.vp.Width, m.vp.Height, 40-chromeHeight)
	}
}

func TestScrollingStopsFollow(t *testing.T) {
	m := fixedModel(make(chan events.Message, 1))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 6})
	m = updated.(Model)
	for i := 0; i < 20; i++ {
		updated, _ = m.Update(eventMsg{events.LogFilesChanged{Character: fmt.Sprintf("C%d", i), Paths: []string{"/x/_Event.2026-08.txt"}}})
		m = updated.(Model)
	}
	if !m.vp.AtBottom() {
		t.Fatal("following view should show the newest line")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(Model)
	if m.follow {
		t.Error("scrolling up should turn follow off")
	}
	if !strings.Contains(m.View(), "follow off") {
		t.Error("footer should show follow off")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
	m = updated.(Model)
	if !m.follow || !m.vp.AtBottom() {
		t.Error("f should resume following at the bottom")
	}
}
