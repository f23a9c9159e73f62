// Package config parses loghist.toml configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the configuration file looked up by Load.
const FileName = "loghist.toml"

// Config is the top-level loghist.toml configuration.
type Config struct {
	Logs          LogsConfig          `toml:"logs"`
	Heuristics    HeuristicsConfig    `toml:"heuristics"`
	Watch         WatchConfig         `toml:"watch"`
	Log           LogConfig           `toml:"log"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// LogsConfig locates the game's log files.
type LogsConfig struct {
	Root       string `toml:"root"`        // directory containing players/
	PlayerGlob string `toml:"player_glob"` // character log folders, relative to root
}

// HeuristicsConfig controls where day indexes are stored.
type HeuristicsConfig struct {
	DataDir string `toml:"data_dir"`
	Backend string `toml:"backend"` // "files" or "sqlite"
	Format  string `toml:"format"`  // "json" or "yaml"; files backend only
}

// WatchConfig controls the filesystem watcher.
type WatchConfig struct {
	Enabled             bool    `toml:"enabled"`
	DebounceMS          int     `toml:"debounce_ms"`
	MaxRefreshPerSecond float64 `toml:"max_refresh_per_second"` // 0 = unlimited
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NotificationsConfig controls webhook/ntfy.sh notifications.
type NotificationsConfig struct {
	URL       string `toml:"url"`
	OnRefresh bool   `toml:"on_refresh"`
	OnChange  bool   `toml:"on_change"`
}

// Validate checks the configuration for issues that would cause confusing
// runtime failures. It returns all found issues joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Logs.Root == "" {
		errs = append(errs, fmt.Errorf("logs.root must not be empty"))
	}
	if c.Logs.PlayerGlob != "" && !doublestar.ValidatePattern(c.Logs.PlayerGlob) {
		errs = append(errs, fmt.Errorf("logs.player_glob %q is not a valid glob pattern", c.Logs.PlayerGlob))
	}

	if c.Heuristics.DataDir == "" {
		errs = append(errs, fmt.Errorf("heuristics.data_dir must not be empty"))
	}
	switch c.Heuristics.Backend {
	case "files", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("heuristics.backend must be \"files\" or \"sqlite\", got %q", c.Heuristics.Backend))
	}
	switch c.Heuristics.Format {
	case "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("heuristics.format must be \"json\" or \"yaml\", got %q", c.Heuristics.Format))
	}

	if c.Watch.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce_ms must be >= 0"))
	}
	if c.Watch.MaxRefreshPerSecond < 0 {
		errs = append(errs, fmt.Errorf("watch.max_refresh_per_second must be >= 0 (0 = unlimited)"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\""))
	}

	if c.Notifications.URL != "" {
		u, parseErr := url.ParseRequestURI(c.Notifications.URL)
		if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("notifications.url must be a valid http or https URL"))
		}
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Logs: LogsConfig{
			Root:       "",
			PlayerGlob: "players/*/logs",
		},
		Heuristics: HeuristicsConfig{
			DataDir: ".loghist",
			Backend: "files",
			Format:  "json",
		},
		Watch: WatchConfig{
			Enabled:             true,
			DebounceMS:          500,
			MaxRefreshPerSecond: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Notifications: NotificationsConfig{
			URL:       "",
			OnRefresh: false,
			OnChange:  true,
		},
	}
}

// Load reads loghist.toml from the given path. If path is empty, it walks up
// from the current working directory looking for loghist.toml. Returns an
// error if the file contains unknown keys (likely typos). Relative paths in
// the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfig()
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := Defaults()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, joinKeys(keys))
	}

	base := filepath.Dir(path)
	if cfg.Logs.Root == "" {
		cfg.Logs.Root = DetectLogsRoot(base)
	} else {
		cfg.Logs.Root = resolve(base, cfg.Logs.Root)
	}
	cfg.Heuristics.DataDir = resolve(base, cfg.Heuristics.DataDir)

	return &cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(base, p)
}

// joinKeys formats a slice of key names for display.
func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}

// findConfig walks up from the current directory looking for loghist.toml.
func findConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: get working directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("config: %s not found (searched up from %s)", FileName, dir)
		}
		dir = parent
	}
}

// InitFile writes a default loghist.toml template to the given directory.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}

	content := `# loghist.toml: game log history configuration

[logs]
root = ""                     # game data directory containing players/ (empty = auto-detect)
player_glob = "players/*/logs" # character log folders, relative to root

[heuristics]
data_dir = ".loghist" # where day indexes are stored
backend = "files"     # "files" (one file per log) or "sqlite"
format = "json"       # "json" or "yaml" (files backend)

[watch]
enabled = true
debounce_ms = 500            # quiet period before refreshing changed files
max_refresh_per_second = 2   # 0 = unlimited

[log]
level = "info"  # debug, info, warn, error
format = "text" # text or json

[notifications]
url = ""           # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
on_refresh = false # notify when a day index is rebuilt
on_change = true   # notify when watched log files change
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}
