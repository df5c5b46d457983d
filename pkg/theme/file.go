package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// FileSource loads theme defaults from a JSON or TOML file. The file holds
// one top-level object or table per theme ID.
type FileSource struct {
	Path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and decodes the file. Files ending in .toml are decoded as
// TOML, everything else as JSON.
func (f *FileSource) Load(_ context.Context) (Defaults, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading theme file: %w", err)
	}

	defaults := Defaults{}
	if strings.EqualFold(filepath.Ext(f.Path), ".toml") {
		if _, err := toml.Decode(string(data), &defaults); err != nil {
			return nil, fmt.Errorf("parsing theme file %s: %w", f.Path, err)
		}
		return defaults, nil
	}

	if err := json.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("parsing theme file %s: %w", f.Path, err)
	}
	return defaults, nil
}

// Watch invalidates cache whenever the file changes until ctx is done. The
// parent directory is watched so editors that replace the file on save are
// noticed too.
func (f *FileSource) Watch(ctx context.Context, cache *Cache, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating theme watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(f.Path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching theme file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("theme file changed", "path", target, "op", event.Op.String())
			cache.Invalidate()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("theme watcher error: %w", err)
		}
	}
}
