// Package events is the in-process notification channel. Subscribers are
// held strongly and live until their Subscription is closed.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Message is anything published on the bus.
type Message interface {
	Kind() string
	String() string
}

// Handler receives published messages. Handle runs on the publisher's
// goroutine and must not block for long.
type Handler interface {
	Handle(Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Message)

// Handle implements Handler.
func (f HandlerFunc) Handle(m Message) { f(m) }

type entry struct {
	id uuid.UUID
	h  Handler
}

// Bus fans messages out to subscribers in subscription order.
type Bus struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs []entry
}

// NewBus creates a Bus. Handler panics are recovered and logged to log.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Subscribe registers h until the returned Subscription is closed.
func (b *Bus) Subscribe(h Handler) *Subscription {
	id := uuid.New()
	b.mu.Lock()
	b.subs = append(b.subs, entry{id: id, h: h})
	b.mu.Unlock()
	return &Subscription{ID: id, bus: b}
}

// Publish delivers m to every current subscriber. Subscriptions added or
// closed during delivery take effect for the next message.
func (b *Bus) Publish(m Message) {
	b.mu.RLock()
	subs := make([]entry, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, m)
	}
}

func (b *Bus) deliver(s entry, m Message) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("event handler panicked", "subscription", s.id, "kind", m.Kind(), "panic", p)
		}
	}()
	s.h.Handle(m)
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscription is the lifetime handle of one subscriber.
type Subscription struct {
	ID uuid.UUID

	bus  *Bus
	once sync.Once
}

// Close detaches the subscriber. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() { s.bus.remove(s.ID) })
	return nil
}
