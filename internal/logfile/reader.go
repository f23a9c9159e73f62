package logfile

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// FingerprintSize is the number of leading bytes hashed into a file
// signature. Appends past this point leave the signature unchanged; a
// rotated or replaced file almost always changes it.
const FingerprintSize = 64

// File is the read-only handle the indexing and scanning code works with.
// *os.File satisfies it.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
	Stat() (fs.FileInfo, error)
}

// Opener opens log files for reading.
type Opener interface {
	Open(path string) (File, error)
}

// OSOpener opens files from the local filesystem.
type OSOpener struct{}

// Open implements Opener.
func (OSOpener) Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Fingerprint returns a signature of the first FingerprintSize bytes of a
// file of the given size. The signature includes the number of bytes hashed,
// so a file still shorter than FingerprintSize changes signature as it grows.
func Fingerprint(r io.ReaderAt, size int64) (string, error) {
	n := size
	if n > FingerprintSize {
		n = FingerprintSize
	}
	buf := make([]byte, n)
	read, err := r.ReadAt(buf, 0)
	if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
		return "", fmt.Errorf("logfile: fingerprint: %w", err)
	}
	sum := sha256.Sum256(buf)
	return fmt.Sprintf("%d:%s", n, hex.EncodeToString(sum[:12])), nil
}

// LineReader reads lines while tracking the byte offset at which each line
// starts. Line terminators ("\n" or "\r\n") are stripped. A final line
// without a terminator is returned as-is.
type LineReader struct {
	r         *bufio.Reader
	pos       int64
	lastStart int64
	next      int
}

// NewLineReader wraps r, whose first byte sits at offset base of the
// underlying file and begins line number baseLine (zero-based).
func NewLineReader(r io.Reader, base int64, baseLine int) *LineReader {
	return &LineReader{
		r:         bufio.NewReaderSize(r, 64*1024),
		pos:       base,
		lastStart: base,
		next:      baseLine,
	}
}

// Next returns the next line. ok is false once the input is exhausted.
func (lr *LineReader) Next() (line string, ok bool, err error) {
	raw, err := lr.r.ReadString('\n')
	if len(raw) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return "", false, nil
		}
		return "", false, err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	lr.lastStart = lr.pos
	lr.pos += int64(len(raw))
	lr.next++
	raw = strings.TrimSuffix(raw, "\n")
	raw = strings.TrimSuffix(raw, "\r")
	return raw, true, nil
}

// LastLineStart returns the byte offset of the line most recently returned.
func (lr *LineReader) LastLineStart() int64 {
	return lr.lastStart
}

// LastLineNumber returns the zero-based number of the line most recently
// returned.
func (lr *LineReader) LastLineNumber() int {
	return lr.next - 1
}

// Position returns the offset of the first byte not yet consumed.
func (lr *LineReader) Position() int64 {
	return lr.pos
}
