package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scaffold prepares dir for loghist: it writes loghist.toml, creates the
// default index data directory and keeps that directory out of version
// control. Files that already exist are left untouched. Returns the list of
// created or modified paths.
func Scaffold(dir string) ([]string, error) {
	var created []string

	tomlPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		if _, initErr := InitFile(dir); initErr != nil {
			return created, initErr
		}
		created = append(created, tomlPath)
	}

	dataDir := filepath.Join(dir, Defaults().Heuristics.DataDir)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dataDir, 0755); mkErr != nil {
			return created, fmt.Errorf("scaffold: create %s: %w", dataDir, mkErr)
		}
		created = append(created, dataDir)
	}

	gitignoreEntry := Defaults().Heuristics.DataDir + "/"
	gitignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	if os.IsNotExist(err) {
		if writeErr := os.WriteFile(gitignorePath, []byte(gitignoreEntry+"\n"), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	} else if err != nil {
		return created, fmt.Errorf("scaffold: read %s: %w", gitignorePath, err)
	} else if !strings.Contains(string(existing), gitignoreEntry) {
		content := string(existing)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content += "\n"
		}
		content += gitignoreEntry + "\n"
		if writeErr := os.WriteFile(gitignorePath, []byte(content), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	}

	return created, nil
}
