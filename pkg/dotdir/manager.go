// Package dotdir resolves the .streamrelay/ directory that holds the
// streamrelay config file and any file-backed theme defaults.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the streamrelay directory.
const DirName = ".streamrelay"

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .streamrelay/ directory.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. Local ./.streamrelay/ dir
//  3. Home ~/.streamrelay/ dir
//
// When none of these exist an empty path is returned and callers fall back
// to defaults.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating streamrelay directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if dirExists(filepath.Join(cwd, DirName)) {
		return filepath.Join(cwd, DirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	if dirExists(filepath.Join(home, DirName)) {
		return filepath.Join(home, DirName), nil
	}

	return "", nil
}

// Home returns ~/.streamrelay/, creating it when it does not exist yet.
// "streamrelay config set" uses it when no directory was resolved.
func (m *Manager) Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating streamrelay directory %s: %w", dir, err)
	}
	return dir, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
