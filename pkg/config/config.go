package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/streamrelay/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// keyOrder is the stable listing order of config keys, matching the TOML
// section layout.
var keyOrder = []string{
	"relay.listen",
	"relay.upstream",
	"relay.chat_path",
	"relay.stream_timeout",
	"relay.connect_timeout",
	"theme.provider",
	"theme.path",
	"theme.redis_addr",
	"theme.redis_key",
	"theme.ttl",
	"theme.watch",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"log.debug",
	"log.json",
	"log.pretty",
	"log.file",
}

// Configer loads and saves config.toml in a resolved .streamrelay/ directory.
type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{ddm: dotdir.NewManager()}

	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// Without a resolved directory targetPath stays empty: LoadConfig returns
	// defaults and SaveConfig errors.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path
	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in section
// order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	for _, k := range keyOrder {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}
	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// UseHome points an unresolved Configer at ~/.streamrelay/config.toml,
// creating the directory. It is a no-op when a target is already set.
func (c *Configer) UseHome() error {
	if c.targetPath != "" {
		return nil
	}
	dir, err := c.ddm.Home()
	if err != nil {
		return err
	}
	c.targetPath = filepath.Join(dir, configFile)
	return nil
}

// LoadConfig loads config.toml from the target directory. A missing file
// yields NewDefaultConfig(); fields left unset in the file are filled from
// the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-value string fields in cfg from NewDefaultConfig().
// Booleans and optional durations have no non-zero default.
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}

	fill(&cfg.Relay.Listen, d.Relay.Listen)
	fill(&cfg.Relay.Upstream, d.Relay.Upstream)
	fill(&cfg.Relay.ChatPath, d.Relay.ChatPath)

	fill(&cfg.Theme.Provider, d.Theme.Provider)
	fill(&cfg.Theme.RedisKey, d.Theme.RedisKey)
	fill(&cfg.Theme.TTL, d.Theme.TTL)

	fill(&cfg.EventStream.Provider, d.EventStream.Provider)
	fill(&cfg.EventStream.Topic, d.EventStream.Topic)
}

// SaveConfig persists the configuration to config.toml in the target directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}
	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
