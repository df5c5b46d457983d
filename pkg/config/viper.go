package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/streamrelay/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by InitViper.
const EnvPrefix = "STREAMRELAY"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads config.toml (if found via
// dotdir resolution), and binds environment variables with the
// STREAMRELAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STREAMRELAY_RELAY_LISTEN, STREAMRELAY_THEME_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves a Config from v, so every layer of the precedence chain
// is reflected in the result.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Relay: RelayConfig{
			Listen:         v.GetString("relay.listen"),
			Upstream:       v.GetString("relay.upstream"),
			ChatPath:       v.GetString("relay.chat_path"),
			StreamTimeout:  v.GetString("relay.stream_timeout"),
			ConnectTimeout: v.GetString("relay.connect_timeout"),
		},
		Theme: ThemeConfig{
			Provider:  v.GetString("theme.provider"),
			Path:      v.GetString("theme.path"),
			RedisAddr: v.GetString("theme.redis_addr"),
			RedisKey:  v.GetString("theme.redis_key"),
			TTL:       v.GetString("theme.ttl"),
			Watch:     v.GetBool("theme.watch"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  SplitList(strings.Join(v.GetStringSlice("eventstream.brokers"), ",")),
			Topic:    v.GetString("eventstream.topic"),
		},
		Log: LogConfig{
			Debug:  v.GetBool("log.debug"),
			JSON:   v.GetBool("log.json"),
			Pretty: v.GetBool("log.pretty"),
			File:   v.GetString("log.file"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("relay.listen", d.Relay.Listen)
	v.SetDefault("relay.upstream", d.Relay.Upstream)
	v.SetDefault("relay.chat_path", d.Relay.ChatPath)
	v.SetDefault("relay.stream_timeout", d.Relay.StreamTimeout)
	v.SetDefault("relay.connect_timeout", d.Relay.ConnectTimeout)

	v.SetDefault("theme.provider", d.Theme.Provider)
	v.SetDefault("theme.path", d.Theme.Path)
	v.SetDefault("theme.redis_addr", d.Theme.RedisAddr)
	v.SetDefault("theme.redis_key", d.Theme.RedisKey)
	v.SetDefault("theme.ttl", d.Theme.TTL)
	v.SetDefault("theme.watch", d.Theme.Watch)

	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.file", d.Log.File)
}
