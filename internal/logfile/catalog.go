package logfile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPlayerGlob locates every character's log folder below the root.
const DefaultPlayerGlob = "players/*/logs"

// Catalog discovers monthly log files below a game data root.
type Catalog struct {
	root       string
	playerGlob string
}

// NewCatalog creates a Catalog rooted at root. playerGlob is a doublestar
// pattern relative to root that matches character log folders; if empty,
// DefaultPlayerGlob is used.
func NewCatalog(root, playerGlob string) *Catalog {
	if playerGlob == "" {
		playerGlob = DefaultPlayerGlob
	}
	return &Catalog{root: root, playerGlob: playerGlob}
}

// Root returns the data root the catalog searches.
func (c *Catalog) Root() string {
	return c.root
}

// LogDirs returns every character log folder below the root.
func (c *Catalog) LogDirs() ([]string, error) {
	pattern := filepath.Join(c.root, filepath.FromSlash(c.playerGlob))
	dirs, err := doublestar.FilepathGlob(pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("logfile: expand %q: %w", pattern, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Characters returns the names of all characters that have a log folder.
func (c *Catalog) Characters() ([]string, error) {
	dirs, err := c.LogDirs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirs))
	for _, d := range dirs {
		names = append(names, filepath.Base(filepath.Dir(d)))
	}
	return names, nil
}

// Files returns the monthly files of one character and log type, oldest
// first. An empty logType matches every type. Character names compare
// case-insensitively, the way the game treats them.
func (c *Catalog) Files(character, logType string) ([]Identity, error) {
	pattern := filepath.Join(c.root, filepath.FromSlash(c.playerGlob), "*.txt")
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("logfile: expand %q: %w", pattern, err)
	}

	var out []Identity
	for _, m := range matches {
		id, err := Parse(m)
		if err != nil {
			continue
		}
		if character != "" && !strings.EqualFold(id.Character, character) {
			continue
		}
		if logType != "" && id.LogType != logType {
			continue
		}
		out = append(out, id)
	}
	SortChronologically(out)
	return out, nil
}

// SortChronologically orders identities by month, then by path.
func SortChronologically(ids []Identity) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.FullPath < b.FullPath
	})
}
