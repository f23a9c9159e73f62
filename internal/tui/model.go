// Package tui is the interactive display of the watch command: a scrolling
// feed of notifications with a status header.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
)

// chromeHeight is the number of lines taken by header and footer.
const chromeHeight = 2

// Model is the bubbletea model of the watch display.
type Model struct {
	feed    <-chan events.Message
	folders []string
	now     func() time.Time

	vp     viewport.Model
	lines  []string
	follow bool
	width  int
	height int

	refreshed int
	changed   int
	done      bool
}

// New creates a Model that shows notifications read from feed. folders are
// the log folders being watched. The model quits when feed is closed.
func New(feed <-chan events.Message, folders []string) Model {
	return Model{
		feed:    feed,
		folders: folders,
		now:     time.Now,
		vp:      viewport.New(80, 24-chromeHeight),
		follow:  true,
		width:   80,
		height:  24,
	}
}

// Init starts listening for notifications.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.feed)
}

// Done reports whether the notification feed has closed.
func (m Model) Done() bool {
	return m.done
}

func waitForEvent(ch <-chan events.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg{msg}
	}
}

// Update handles incoming messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-chromeHeight, 1)
		if m.follow {
			m.vp.GotoBottom()
		}
		return m, nil

	case eventMsg:
		m = m.appendEvent(msg.Message)
		return m, waitForEvent(m.feed)

	case feedClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "f":
		m.follow = !m.follow
		if m.follow {
			m.vp.GotoBottom()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	// Scrolling away from the newest line stops following.
	if m.follow && !m.vp.AtBottom() {
		m.follow = false
	}
	return m, cmd
}

func (m Model) appendEvent(msg events.Message) Model {
	switch msg.Kind() {
	case events.KindHeuristicsRefreshed:
		m.refreshed++
	case events.KindLogFilesChanged:
		m.changed++
	}

	icon, style := styleFor(msg.Kind())
	line := timeStyle.Render(m.now().Format("15:04:05")) + " " + style.Render(icon+" "+msg.String())
	m.lines = append(m.lines, line)
	m.vp.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.vp.GotoBottom()
	}
	return m
}

// View renders the header, the notification feed and the key help.
func (m Model) View() string {
	header := headerStyle.Width(m.width).Render(fmt.Sprintf("loghist watch  %d %s  %d changed  %d refreshed",
		len(m.folders), plural(len(m.folders), "folder", "folders"), m.changed, m.refreshed))

	follow := "follow on"
	if !m.follow {
		follow = "follow off"
	}
	footer := footerStyle.Render("q quit  f " + follow + "  ↑/↓ scroll")

	body := m.vp.View()
	if len(m.lines) == 0 {
		body = timeStyle.Render("waiting for the game to write...") + strings.Repeat("\n", max(m.vp.Height-1, 0))
	}
	return header + "\n" + body + "\n" + footer
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
