package persist

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownVersion marks stored records whose version the schema cannot
// reach: written by a newer build, or with no migration path.
var ErrUnknownVersion = errors.New("persist: unsupported record version")

// LoadError describes a stored record that could not be turned into a
// usable value.
type LoadError struct {
	Collection string
	Key        string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("persist: load %s/%s: %v", e.Collection, e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrorHandler decides what happens when a stored record cannot be loaded.
// Returning nil degrades the record to "absent" (a fresh default record is
// used and the bad payload is overwritten on the next flush); returning an
// error fails the Get call with it.
type ErrorHandler interface {
	HandleLoadError(e *LoadError) error
}

// LogErrorHandler logs load failures at warning level and treats the record
// as absent.
type LogErrorHandler struct {
	Log *slog.Logger
}

// HandleLoadError implements ErrorHandler.
func (h LogErrorHandler) HandleLoadError(e *LoadError) error {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("discarding unreadable persisted record",
		"collection", e.Collection, "key", e.Key, "err", e.Err)
	return nil
}

type flusher interface {
	FlushAll() error
}

// Library owns a backend, a serializer and an error handler and hands out
// named collections that share them.
type Library struct {
	backend    Backend
	serializer Serializer
	errs       ErrorHandler

	mu          sync.Mutex
	collections map[string]flusher
	closed      bool
}

// NewLibrary creates a Library. A nil serializer means JSON; a nil error
// handler logs through slog.Default.
func NewLibrary(backend Backend, serializer Serializer, errs ErrorHandler) *Library {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	if errs == nil {
		errs = LogErrorHandler{}
	}
	return &Library{
		backend:     backend,
		serializer:  serializer,
		errs:        errs,
		collections: make(map[string]flusher),
	}
}

// OpenCollection registers a collection of records of type T under name.
// Each name may be opened once per Library.
func OpenCollection[T any, P recordPtr[T]](lib *Library, name string, schema Schema[T]) (*Collection[T, P], error) {
	if name == "" {
		return nil, errors.New("persist: collection name must not be empty")
	}
	if err := schema.validate(); err != nil {
		return nil, fmt.Errorf("persist: collection %s: %w", name, err)
	}

	lib.mu.Lock()
	defer lib.mu.Unlock()
	if lib.closed {
		return nil, errors.New("persist: library is closed")
	}
	if _, exists := lib.collections[name]; exists {
		return nil, fmt.Errorf("persist: collection %s already open", name)
	}
	c := &Collection[T, P]{
		lib:     lib,
		name:    name,
		schema:  schema,
		handles: make(map[string]*Handle[T, P]),
	}
	lib.collections[name] = c
	return c, nil
}

// FlushAll writes every dirty record of every collection.
func (l *Library) FlushAll() error {
	l.mu.Lock()
	cols := make([]flusher, 0, len(l.collections))
	for _, c := range l.collections {
		cols = append(cols, c)
	}
	l.mu.Unlock()

	var errs []error
	for _, c := range cols {
		if err := c.FlushAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes all collections and closes the backend.
func (l *Library) Close() error {
	flushErr := l.FlushAll()

	l.mu.Lock()
	alreadyClosed := l.closed
	l.closed = true
	l.mu.Unlock()
	if alreadyClosed {
		return flushErr
	}
	return errors.Join(flushErr, l.backend.Close())
}
