package config

import (
	"os"
	"path/filepath"
)

// playersDir is the folder every game data directory contains.
const playersDir = "players"

// DetectLogsRoot tries to find the game data directory. It checks dir
// itself, then the usual install locations under the user's home
// directory, returning the first one that contains a players/ folder.
// Returns "" if none does.
func DetectLogsRoot(dir string) string {
	candidates := []string{dir}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, homeCandidates(home)...)
	}
	for _, c := range candidates {
		if IsLogsRoot(c) {
			return c
		}
	}
	return ""
}

func homeCandidates(home string) []string {
	return []string{
		filepath.Join(home, "wurm"),
		filepath.Join(home, "Wurm"),
		filepath.Join(home, "wurm", "gamedata"),
		filepath.Join(home, ".steam", "steam", "steamapps", "common", "Wurm Unlimited", "WurmLauncher", "PlayerFiles"),
		filepath.Join(home, "Library", "Application Support", "Steam", "steamapps", "common", "Wurm Unlimited", "WurmLauncher", "PlayerFiles"),
	}
}

// IsLogsRoot reports whether dir looks like a game data directory.
func IsLogsRoot(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, playersDir))
	return err == nil && info.IsDir()
}
