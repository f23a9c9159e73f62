// Package notify sends fire-and-forget HTTP notifications for log history
// events. The primary use case is ntfy.sh, but any HTTP webhook works.
package notify

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
)

// DefaultTitle is sent as X-Title when no title is configured.
const DefaultTitle = "loghist"

// Notifier posts plain-text HTTP notifications for selected events. It is an
// events.Handler.
type Notifier struct {
	url       string
	title     string
	onRefresh bool
	onChange  bool
	client    *http.Client
	log       *slog.Logger
	wg        sync.WaitGroup
}

// New creates a Notifier. title is used as the X-Title header; if empty,
// DefaultTitle is used instead.
func New(notifURL, title string, onRefresh, onChange bool, log *slog.Logger) *Notifier {
	if title == "" {
		title = DefaultTitle
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		url:       notifURL,
		title:     title,
		onRefresh: onRefresh,
		onChange:  onChange,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// Handle fires an asynchronous POST if the message kind is enabled.
func (n *Notifier) Handle(m events.Message) {
	switch m.Kind() {
	case events.KindHeuristicsRefreshed:
		if !n.onRefresh {
			return
		}
	case events.KindLogFilesChanged:
		if !n.onChange {
			return
		}
	default:
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.post(m.String())
	}()
}

// Wait blocks until every POST started by Handle has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// post sends a plain-text POST to the configured URL. Failures are only
// logged; a dead webhook never interrupts indexing.
func (n *Notifier) post(message string) {
	req, err := http.NewRequest(http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		n.log.Debug("notification dropped", "error", err)
		return
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Title", n.title)
	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Debug("notification failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Debug("notification rejected", "status", resp.StatusCode)
	}
}
