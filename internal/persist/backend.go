package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by backends for keys that were never saved.
var ErrNotFound = errors.New("persist: record not found")

// Backend stores serialized records. Implementations must make Save atomic:
// a failed or interrupted Save leaves the previously stored value intact.
type Backend interface {
	Load(collection, key string) ([]byte, error)
	Save(collection, key string, data []byte) error
	Close() error
}

// FlatFiles stores one file per record under <dir>/<collection>/. Writes go
// to a temporary file in the same directory and are renamed into place.
type FlatFiles struct {
	dir string
	ext string
}

// NewFlatFiles creates a file backend rooted at dir. ext is appended to
// record file names (e.g. ".json").
func NewFlatFiles(dir, ext string) (*FlatFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("persist: mkdir %q: %w", dir, err)
	}
	return &FlatFiles{dir: dir, ext: ext}, nil
}

// path maps a key to a file name. Keys are arbitrary strings (often file
// paths), so they are hashed rather than escaped.
func (f *FlatFiles) path(collection, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, collection, hex.EncodeToString(sum[:16])+f.ext)
}

// Load implements Backend.
func (f *FlatFiles) Load(collection, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(collection, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("persist: read %s/%s: %w", collection, key, err)
	}
	return data, nil
}

// Save implements Backend.
func (f *FlatFiles) Save(collection, key string, data []byte) error {
	path := f.path(collection, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("persist: mkdir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("persist: create temp: %w", err)
	}
	if _, writeErr := tmp.Write(data); writeErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: write %s/%s: %w", collection, key, writeErr)
	}
	if syncErr := tmp.Sync(); syncErr != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: sync %s/%s: %w", collection, key, syncErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: close %s/%s: %w", collection, key, closeErr)
	}
	if renameErr := os.Rename(tmp.Name(), path); renameErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: finalize %s/%s: %w", collection, key, renameErr)
	}
	return nil
}

// Close implements Backend.
func (f *FlatFiles) Close() error { return nil }
