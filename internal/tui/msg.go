package tui

import "github.com/LISSConsulting/LISSTech.LogHistory/internal/events"

// eventMsg wraps a bus notification as a bubbletea message.
type eventMsg struct{ events.Message }

// feedClosedMsg signals that the watcher stopped and no more events follow.
type feedClosedMsg struct{}
