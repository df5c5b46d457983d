package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent streamrelay configuration stored as
// config.toml in the .streamrelay/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Relay       RelayConfig       `toml:"relay"`
	Theme       ThemeConfig       `toml:"theme"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
}

// RelayConfig holds the HTTP surface and upstream settings.
type RelayConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`
	ChatPath string `toml:"chat_path,omitempty"`

	// StreamTimeout and ConnectTimeout are Go duration strings ("90s").
	// Empty means no limit.
	StreamTimeout  string `toml:"stream_timeout,omitempty"`
	ConnectTimeout string `toml:"connect_timeout,omitempty"`
}

// ThemeConfig selects where theme defaults come from.
type ThemeConfig struct {
	// Provider is one of "none", "file" or "redis".
	Provider  string `toml:"provider,omitempty"`
	Path      string `toml:"path,omitempty"`
	RedisAddr string `toml:"redis_addr,omitempty"`
	RedisKey  string `toml:"redis_key,omitempty"`
	TTL       string `toml:"ttl,omitempty"`
	Watch     bool   `toml:"watch,omitempty"`
}

// EventStreamConfig selects where assembled messages are published.
type EventStreamConfig struct {
	// Provider is one of "nop" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// LogConfig controls the handler behind the service logger.
type LogConfig struct {
	Debug  bool `toml:"debug,omitempty"`
	JSON   bool `toml:"json,omitempty"`
	Pretty bool `toml:"pretty,omitempty"`

	// File is an optional JSON log file written alongside console output.
	// Relative paths are resolved against the .streamrelay/ directory.
	File string `toml:"file,omitempty"`
}

// ParseDuration parses an optional duration setting. An empty string is zero.
func ParseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: negative duration %q", key, v)
	}
	return d, nil
}

// configKey maps a dotted config key to its getter and setter.
type configKey struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKey {
	return configKey{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKey {
	return configKey{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := ParseDuration(name, v); err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKey {
	return configKey{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func oneOfKey(name string, allowed []string, field func(c *Config) *string) configKey {
	return configKey{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			for _, a := range allowed {
				if v == a {
					*field(c) = v
					return nil
				}
			}
			return fmt.Errorf("invalid value for %s: %q (expected one of %s)", name, v, strings.Join(allowed, ", "))
		},
	}
}

// configKeys is the single registry of settable keys.
var configKeys = map[string]configKey{
	"relay.listen":          stringKey(func(c *Config) *string { return &c.Relay.Listen }),
	"relay.upstream":        stringKey(func(c *Config) *string { return &c.Relay.Upstream }),
	"relay.chat_path":       stringKey(func(c *Config) *string { return &c.Relay.ChatPath }),
	"relay.stream_timeout":  durationKey("relay.stream_timeout", func(c *Config) *string { return &c.Relay.StreamTimeout }),
	"relay.connect_timeout": durationKey("relay.connect_timeout", func(c *Config) *string { return &c.Relay.ConnectTimeout }),

	"theme.provider":   oneOfKey("theme.provider", ThemeProviders, func(c *Config) *string { return &c.Theme.Provider }),
	"theme.path":       stringKey(func(c *Config) *string { return &c.Theme.Path }),
	"theme.redis_addr": stringKey(func(c *Config) *string { return &c.Theme.RedisAddr }),
	"theme.redis_key":  stringKey(func(c *Config) *string { return &c.Theme.RedisKey }),
	"theme.ttl":        durationKey("theme.ttl", func(c *Config) *string { return &c.Theme.TTL }),
	"theme.watch":      boolKey("theme.watch", func(c *Config) *bool { return &c.Theme.Watch }),

	"eventstream.provider": oneOfKey("eventstream.provider", EventStreamProviders, func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = SplitList(v)
			return nil
		},
	},
	"eventstream.topic": stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"log.debug":  boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	"log.json":   boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.pretty": boolKey("log.pretty", func(c *Config) *bool { return &c.Log.Pretty }),
	"log.file":   stringKey(func(c *Config) *string { return &c.Log.File }),
}

// SplitList splits a comma separated setting, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
