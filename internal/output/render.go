package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/heuristics"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logparse"
)

// Renderer writes command results.
type Renderer interface {
	// Entries prints scan results. complete is false when the range may
	// still gain entries.
	Entries(entries []logparse.Entry, complete bool) error
	Index(id logfile.Identity, r heuristics.Result) error
	Files(ids []logfile.Identity) error
	Event(m events.Message) error
}

// New returns a JSON-lines renderer if jsonOut is set, otherwise a text
// renderer. color enables lipgloss styling of text output.
func New(w io.Writer, jsonOut, color bool) Renderer {
	if jsonOut {
		return NewJSON(w)
	}
	return NewText(w, color)
}

// Text renders human-readable output.
type Text struct {
	w     io.Writer
	color bool
}

// NewText creates a text renderer.
func NewText(w io.Writer, color bool) *Text {
	return &Text{w: w, color: color}
}

func (t *Text) paint(s lipgloss.Style, text string) string {
	if !t.color {
		return text
	}
	return s.Render(text)
}

// Entries implements Renderer.
func (t *Text) Entries(entries []logparse.Entry, complete bool) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(t.paint(dateStyle, e.Timestamp.Format("2006-01-02 15:04:05")))
		b.WriteByte(' ')
		if e.Source != "" {
			b.WriteString(t.paint(sourceStyle, "<"+e.Source+">"))
			b.WriteByte(' ')
		}
		b.WriteString(t.paint(textStyle, e.Content))
		b.WriteByte('\n')
	}

	footer := fmt.Sprintf("%d %s", len(entries), plural(len(entries), "entry", "entries"))
	if !complete {
		footer += " (range still open, more entries may follow)"
	}
	b.WriteString(t.paint(footerStyle, footer))
	b.WriteByte('\n')

	_, err := io.WriteString(t.w, b.String())
	return err
}

// Index implements Renderer.
func (t *Text) Index(id logfile.Identity, r heuristics.Result) error {
	var b strings.Builder
	b.WriteString(t.paint(headingStyle, id.String()))
	b.WriteByte('\n')
	b.WriteString(t.paint(footerStyle, fmt.Sprintf("%5s %10s %8s %7s", "day", "offset", "line", "lines")))
	b.WriteByte('\n')

	for _, d := range r.Days {
		lines := "?"
		if d.Lines >= 0 {
			lines = fmt.Sprint(d.Lines)
		}
		row := fmt.Sprintf("%5d %10d %8d %7s", d.Day, d.Offset, d.Line, lines)
		if !d.Certain {
			row = t.paint(uncertainStyle, row+"  (still being written)")
		}
		b.WriteString(row)
		b.WriteByte('\n')
	}

	footer := fmt.Sprintf("%d %s", len(r.Days), plural(len(r.Days), "day", "days"))
	if r.Stats.Lines > 0 {
		footer += fmt.Sprintf(" (%d lines read, %d malformed)", r.Stats.Lines, r.Stats.Malformed)
	}
	b.WriteString(t.paint(footerStyle, footer))
	b.WriteByte('\n')

	_, err := io.WriteString(t.w, b.String())
	return err
}

// Files implements Renderer.
func (t *Text) Files(ids []logfile.Identity) error {
	var b strings.Builder
	for _, id := range ids {
		month := fmt.Sprintf("%04d-%02d", id.Year, int(id.Month))
		b.WriteString(t.paint(dateStyle, month))
		b.WriteString("  ")
		b.WriteString(id.FullPath)
		b.WriteByte('\n')
	}
	b.WriteString(t.paint(footerStyle, fmt.Sprintf("%d %s", len(ids), plural(len(ids), "file", "files"))))
	b.WriteByte('\n')

	_, err := io.WriteString(t.w, b.String())
	return err
}

// Event implements Renderer.
func (t *Text) Event(m events.Message) error {
	_, err := fmt.Fprintln(t.w, t.paint(eventStyle, eventIcon(m.Kind())+" "+m.String()))
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// JSON renders one JSON object per line.
type JSON struct {
	enc *json.Encoder
}

// NewJSON creates a JSON-lines renderer.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

type summaryLine struct {
	Summary struct {
		Count    int  `json:"count"`
		Complete bool `json:"complete"`
	} `json:"summary"`
}

// Entries implements Renderer. Entries are followed by a summary line.
func (j *JSON) Entries(entries []logparse.Entry, complete bool) error {
	for _, e := range entries {
		if err := j.enc.Encode(e); err != nil {
			return err
		}
	}
	var s summaryLine
	s.Summary.Count = len(entries)
	s.Summary.Complete = complete
	return j.enc.Encode(s)
}

type indexLine struct {
	File      string           `json:"file"`
	Days      []heuristics.Day `json:"days"`
	Lines     int              `json:"lines_read"`
	Malformed int              `json:"malformed"`
}

// Index implements Renderer.
func (j *JSON) Index(id logfile.Identity, r heuristics.Result) error {
	days := r.Days
	if days == nil {
		days = []heuristics.Day{}
	}
	return j.enc.Encode(indexLine{
		File:      id.FullPath,
		Days:      days,
		Lines:     r.Stats.Lines,
		Malformed: r.Stats.Malformed,
	})
}

type fileLine struct {
	Path      string `json:"path"`
	Character string `json:"character"`
	LogType   string `json:"log_type"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
}

// Files implements Renderer.
func (j *JSON) Files(ids []logfile.Identity) error {
	for _, id := range ids {
		err := j.enc.Encode(fileLine{
			Path:      id.FullPath,
			Character: id.Character,
			LogType:   id.LogType,
			Year:      id.Year,
			Month:     int(id.Month),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type eventLine struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event implements Renderer.
func (j *JSON) Event(m events.Message) error {
	return j.enc.Encode(eventLine{Kind: m.Kind(), Message: m.String()})
}
