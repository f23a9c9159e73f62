package persist

import (
	"errors"
	"fmt"
	"sync"
)

// Collection is a named set of records of one type. There is at most one
// in-memory Handle per key.
type Collection[T any, P recordPtr[T]] struct {
	lib    *Library
	name   string
	schema Schema[T]

	mu      sync.Mutex
	handles map[string]*Handle[T, P]
}

// Name returns the collection name.
func (c *Collection[T, P]) Name() string {
	return c.name
}

// Get returns the handle for key, loading it from the backend on first
// access. A missing record yields a fresh default record, never nil.
// Loads of different keys run concurrently; concurrent Gets of the same
// key share one load.
func (c *Collection[T, P]) Get(key string) (*Handle[T, P], error) {
	c.mu.Lock()
	h, ok := c.handles[key]
	if !ok {
		h = &Handle[T, P]{coll: c, key: key, loaded: make(chan struct{})}
		c.handles[key] = h
	}
	c.mu.Unlock()

	if !ok {
		h.err = h.load()
		if h.err != nil {
			c.mu.Lock()
			if c.handles[key] == h {
				delete(c.handles, key)
			}
			c.mu.Unlock()
		}
		close(h.loaded)
	}

	<-h.loaded
	if h.err != nil {
		return nil, h.err
	}
	return h, nil
}

// MarkDirty flags the record for key as changed.
func (c *Collection[T, P]) MarkDirty(key string) error {
	h, err := c.Get(key)
	if err != nil {
		return err
	}
	h.MarkDirty()
	return nil
}

// Flush writes the record for key if it is loaded and dirty.
func (c *Collection[T, P]) Flush(key string) error {
	c.mu.Lock()
	h, ok := c.handles[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	<-h.loaded
	if h.err != nil {
		return nil
	}
	return h.Flush()
}

// FlushAll writes every loaded, dirty record.
func (c *Collection[T, P]) FlushAll() error {
	c.mu.Lock()
	hs := make([]*Handle[T, P], 0, len(c.handles))
	for _, h := range c.handles {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	var errs []error
	for _, h := range hs {
		<-h.loaded
		if h.err != nil {
			continue
		}
		if err := h.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Collection[T, P]) fresh(key string) P {
	v := P(new(T))
	meta := v.Meta()
	meta.ObjectID = key
	meta.Version = c.schema.Version
	if c.schema.Init != nil {
		c.schema.Init((*T)(v))
	}
	return v
}

// Handle is the single in-memory instance of one record. Reads go through
// View, mutations through Update (or MarkDirty after an external change);
// both hold the handle lock, so fn must not call back into the handle.
type Handle[T any, P recordPtr[T]] struct {
	coll *Collection[T, P]
	key  string

	loaded chan struct{}
	err    error

	mu    sync.Mutex
	value P
	dirty bool
	gen   uint64 // bumped on every mutation

	writeMu sync.Mutex // serializes physical writes of this key
}

// Key returns the record key.
func (h *Handle[T, P]) Key() string {
	return h.key
}

// View calls fn with the record. fn must not retain or modify it.
func (h *Handle[T, P]) View(fn func(P)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.value)
}

// Update calls fn to mutate the record and flags it dirty.
func (h *Handle[T, P]) Update(fn func(P)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.value)
	h.dirty = true
	h.gen++
}

// MarkDirty flags the record as changed.
func (h *Handle[T, P]) MarkDirty() {
	h.mu.Lock()
	h.dirty = true
	h.gen++
	h.mu.Unlock()
}

// Dirty reports whether the record has unflushed changes.
func (h *Handle[T, P]) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

// Flush serializes and writes the record if it is dirty. A mutation that
// lands while the write is in progress keeps the record dirty.
func (h *Handle[T, P]) Flush() error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	if !h.dirty {
		h.mu.Unlock()
		return nil
	}
	data, err := h.coll.lib.serializer.Marshal(h.value)
	gen := h.gen
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist: marshal %s/%s: %w", h.coll.name, h.key, err)
	}

	if err := h.coll.lib.backend.Save(h.coll.name, h.key, data); err != nil {
		return err
	}

	h.mu.Lock()
	if h.gen == gen {
		h.dirty = false
	}
	h.mu.Unlock()
	return nil
}

// load fills the handle from the backend, applying migrations. Unreadable
// payloads are routed through the library's ErrorHandler.
func (h *Handle[T, P]) load() error {
	c := h.coll
	lib := c.lib

	data, err := lib.backend.Load(c.name, h.key)
	if errors.Is(err, ErrNotFound) {
		h.value = c.fresh(h.key)
		return nil
	}
	if err != nil {
		return h.degrade(err)
	}

	v := P(new(T))
	if err := lib.serializer.Unmarshal(data, v); err != nil {
		return h.degrade(err)
	}
	meta := v.Meta()
	if meta.Version > c.schema.Version {
		return h.degrade(fmt.Errorf("%w: stored version %d is newer than %d", ErrUnknownVersion, meta.Version, c.schema.Version))
	}
	migrated := c.schema.migrate((*T)(v), meta)
	if meta.Version != c.schema.Version {
		return h.degrade(fmt.Errorf("%w: no migration from version %d to %d", ErrUnknownVersion, meta.Version, c.schema.Version))
	}
	meta.ObjectID = h.key

	h.value = v
	h.dirty = migrated
	return nil
}

// degrade asks the error handler what to do with an unusable record. On nil
// the handle starts from a fresh record.
func (h *Handle[T, P]) degrade(cause error) error {
	lerr := &LoadError{Collection: h.coll.name, Key: h.key, Err: cause}
	if err := h.coll.lib.errs.HandleLoadError(lerr); err != nil {
		return err
	}
	h.value = h.coll.fresh(h.key)
	return nil
}
