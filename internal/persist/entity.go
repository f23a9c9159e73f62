// Package persist is a small versioned key/object store. Objects live in
// named collections, are loaded on first access (or created with default
// values), mutated only through their Handle, and written back only when
// flagged dirty and explicitly flushed. Stored payloads carry a version
// number and are upgraded through an ordered chain of migrations on load.
package persist

import (
	"errors"
	"fmt"
	"sort"
)

// Entity is the persisted header every record embeds. ObjectID is the
// collection key; Version drives migration.
type Entity struct {
	ObjectID string `json:"object_id" yaml:"object_id"`
	Version  int    `json:"version" yaml:"version"`
}

// Meta returns the entity header. Records get it by embedding Entity.
func (e *Entity) Meta() *Entity {
	return e
}

// Record is implemented by pointers to types that embed Entity.
type Record interface {
	Meta() *Entity
}

// recordPtr constrains P to be *T and a Record, so collections can allocate
// fresh values of T and still reach their Entity header.
type recordPtr[T any] interface {
	*T
	Record
}

// Migration upgrades a record from version From to version To. When, if
// set, gates the step on the record's current field values; a step whose
// predicate fails is skipped and the record keeps its version.
type Migration[T any] struct {
	From  int
	To    int
	When  func(*T) bool
	Apply func(*T)
}

// Schema describes the current version of a record type and how older
// payloads reach it.
type Schema[T any] struct {
	// Version is stamped on newly created records and is the version every
	// loaded record must reach after migration.
	Version int
	// Init, if set, fills default values into a freshly created record.
	Init       func(*T)
	Migrations []Migration[T]
}

func (s Schema[T]) validate() error {
	var errs []error
	if s.Version < 1 {
		errs = append(errs, fmt.Errorf("schema version must be >= 1, got %d", s.Version))
	}
	for i, m := range s.Migrations {
		if m.To <= m.From {
			errs = append(errs, fmt.Errorf("migration %d: target version %d must be greater than source %d", i, m.To, m.From))
		}
		if m.To > s.Version {
			errs = append(errs, fmt.Errorf("migration %d: target version %d exceeds schema version %d", i, m.To, s.Version))
		}
	}
	return errors.Join(errs...)
}

// migrate applies the migration chain in ascending source-version order and
// reports whether any step ran. Steps sharing a source version run in
// registration order; the first one whose predicate passes wins.
func (s Schema[T]) migrate(v *T, meta *Entity) bool {
	steps := make([]Migration[T], len(s.Migrations))
	copy(steps, s.Migrations)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].From < steps[j].From })

	changed := false
	for _, m := range steps {
		if meta.Version != m.From {
			continue
		}
		if m.When != nil && !m.When(v) {
			continue
		}
		if m.Apply != nil {
			m.Apply(v)
		}
		meta.Version = m.To
		changed = true
	}
	return changed
}
