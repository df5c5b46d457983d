package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug when debug is true.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the colorized charmbracelet/log handler. It takes
// precedence over WithJSON.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		if pretty {
			c.format = formatPretty
		} else if c.format == formatPretty {
			c.format = formatText
		}
	}
}

// WithJSON selects slog's JSON handler unless pretty output was requested.
func WithJSON(json bool) Option {
	return func(c *config) {
		switch {
		case c.format == formatPretty:
		case json:
			c.format = formatJSON
		default:
			c.format = formatText
		}
	}
}

// WithWriter sets the output. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writer = w
	}
}
