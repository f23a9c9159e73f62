// Package logfile identifies, discovers and opens the monthly log files the
// game client writes under <root>/players/<Character>/logs/. Each monthly
// file is named "<LogType>.<yyyy>-<MM>.txt" and is only ever appended to.
package logfile

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// monthlyNameRe matches "<LogType>.<yyyy>-<MM>.txt". Daily files
// ("<LogType>.<yyyy>-<MM>-<dd>.txt") deliberately do not match.
var monthlyNameRe = regexp.MustCompile(`^(.+)\.(\d{4})-(\d{2})\.txt$`)

// logsDirName is the folder holding a character's log files.
const logsDirName = "logs"

// Identity names exactly one monthly log file on disk. It is immutable.
type Identity struct {
	FileName  string
	FullPath  string
	Character string // empty when the file is not inside players/<name>/logs
	LogType   string // file name prefix, e.g. "_Event"
	Year      int
	Month     time.Month
}

// Parse derives an Identity from a monthly log file path. It returns an
// error if the file name does not follow the monthly naming convention.
func Parse(path string) (Identity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Identity{}, fmt.Errorf("logfile: resolve %q: %w", path, err)
	}
	name := filepath.Base(abs)
	m := monthlyNameRe.FindStringSubmatch(name)
	if m == nil {
		return Identity{}, fmt.Errorf("logfile: %q is not a monthly log file name", name)
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return Identity{}, fmt.Errorf("logfile: %q has invalid month %d", name, month)
	}

	var character string
	dir := filepath.Dir(abs)
	if filepath.Base(dir) == logsDirName {
		character = filepath.Base(filepath.Dir(dir))
	}

	return Identity{
		FileName:  name,
		FullPath:  abs,
		Character: character,
		LogType:   m[1],
		Year:      year,
		Month:     time.Month(month),
	}, nil
}

// ObjectID is the persistence key for data derived from this file.
func (id Identity) ObjectID() string {
	return filepath.ToSlash(filepath.Clean(id.FullPath))
}

// Start returns the first instant of the file's month in local time.
func (id Identity) Start() time.Time {
	return time.Date(id.Year, id.Month, 1, 0, 0, 0, 0, time.Local)
}

// End returns the first instant of the month after the file's month.
func (id Identity) End() time.Time {
	return id.Start().AddDate(0, 1, 0)
}

// DaysInMonth returns the number of calendar days in the file's month.
func (id Identity) DaysInMonth() int {
	return id.End().AddDate(0, 0, -1).Day()
}

// IsCurrentMonth reports whether the file belongs to the calendar month of
// now, i.e. whether it may still be appended to.
func (id Identity) IsCurrentMonth(now time.Time) bool {
	return now.Year() == id.Year && now.Month() == id.Month
}

// Overlaps reports whether the file's month intersects [from, to].
func (id Identity) Overlaps(from, to time.Time) bool {
	return !to.Before(id.Start()) && from.Before(id.End())
}

func (id Identity) String() string {
	if id.Character == "" {
		return id.FileName
	}
	return id.Character + "/" + id.FileName
}
