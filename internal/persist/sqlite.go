package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps every collection in one SQLite database file.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("persist: mkdir for %q: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open database: %w", err)
	}
	// One connection keeps writers from racing on the file lock.
	db.SetMaxOpenConns(1)

	s := &SQLiteBackend{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		data       BLOB NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (collection, key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load implements Backend.
func (s *SQLiteBackend) Load(collection, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM objects WHERE collection = ? AND key = ?",
		collection, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: query %s/%s: %w", collection, key, err)
	}
	return data, nil
}

// Save implements Backend.
func (s *SQLiteBackend) Save(collection, key string, data []byte) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("persist: begin: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO objects (collection, key, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, key, data, time.Now().UTC(),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("persist: upsert %s/%s: %w", collection, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit %s/%s: %w", collection, key, err)
	}
	return nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
