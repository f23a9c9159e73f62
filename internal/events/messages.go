package events

import (
	"fmt"
	"strings"
)

// Message kinds.
const (
	KindHeuristicsRefreshed = "heuristics_refreshed"
	KindLogFilesChanged     = "log_files_changed"
)

// HeuristicsRefreshed is published after the day index of a log file was
// rebuilt, fully or from its tail, and persisted.
type HeuristicsRefreshed struct {
	Path      string
	Character string
	LogType   string
	Full      bool // whole-file extraction rather than a tail update
	Days      int
}

// Kind implements Message.
func (HeuristicsRefreshed) Kind() string { return KindHeuristicsRefreshed }

func (e HeuristicsRefreshed) String() string {
	mode := "tail"
	if e.Full {
		mode = "full"
	}
	return fmt.Sprintf("%s %s: index refreshed (%s, %d days)", e.Character, e.LogType, mode, e.Days)
}

// LogFilesChanged is published when watched log files were written to and
// their indexes have been refreshed.
type LogFilesChanged struct {
	Character string
	Paths     []string
}

// Kind implements Message.
func (LogFilesChanged) Kind() string { return KindLogFilesChanged }

func (e LogFilesChanged) String() string {
	names := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		names[i] = p[strings.LastIndexAny(p, `/\`)+1:]
	}
	return fmt.Sprintf("%s: %s changed", e.Character, strings.Join(names, ", "))
}
