// Package logger provides opinionated logging capabilities for streamrelay.
//
// Every component takes a *slog.Logger. The handler behind it is chosen once
// at startup: slog's text handler by default, slog's JSON handler for service
// logs, or the charmbracelet/log handler for colorized CLI output. Console
// output can be mirrored to a JSON log file with NewFile and Multi.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
)

type format int

const (
	formatText format = iota
	formatJSON
	formatPretty
)

type config struct {
	level  slog.Level
	format format
	writer io.Writer
}

// New creates a *slog.Logger configured by the given options.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:  slog.LevelInfo,
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch c.format {
	case formatPretty:
		return slog.New(charmlog.NewWithOptions(c.writer, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
		}))
	case formatJSON:
		return slog.New(slog.NewJSONHandler(c.writer, &slog.HandlerOptions{Level: c.level}))
	default:
		return slog.New(slog.NewTextHandler(c.writer, &slog.HandlerOptions{Level: c.level}))
	}
}

// NewFile opens path for appending, creating it and its directory when
// missing, and returns a JSON logger writing to it. The caller closes the
// returned file.
func NewFile(path string, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(WithWriter(f), WithJSON(true), WithDebug(debug)), f, nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
