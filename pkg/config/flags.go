package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "relay.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag registry keys to their definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen              = "listen"
	FlagUpstream            = "upstream"
	FlagChatPath            = "chat-path"
	FlagStreamTimeout       = "stream-timeout"
	FlagConnectTimeout      = "connect-timeout"
	FlagThemeProvider       = "theme-provider"
	FlagThemePath           = "theme-path"
	FlagThemeRedisAddr      = "theme-redis-addr"
	FlagThemeTTL            = "theme-ttl"
	FlagThemeWatch          = "theme-watch"
	FlagEventStreamProvider = "eventstream-provider"
	FlagEventStreamBrokers  = "eventstream-brokers"
	FlagEventStreamTopic    = "eventstream-topic"
	FlagLogJSON             = "log-json"
	FlagLogPretty           = "log-pretty"
	FlagLogFile             = "log-file"
)

// ServeFlags are the flags accepted by "streamrelay serve".
var ServeFlags = FlagSet{
	FlagListen:              {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	FlagUpstream:            {Name: "upstream", Shorthand: "u", ViperKey: "relay.upstream", Description: "Upstream base URL"},
	FlagChatPath:            {Name: "chat-path", ViperKey: "relay.chat_path", Description: "Upstream path for chat completions"},
	FlagStreamTimeout:       {Name: "stream-timeout", ViperKey: "relay.stream_timeout", Description: "Maximum lifetime of a relayed stream (e.g. 10m, empty for none)"},
	FlagConnectTimeout:      {Name: "connect-timeout", ViperKey: "relay.connect_timeout", Description: "Maximum wait for upstream response headers"},
	FlagThemeProvider:       {Name: "theme-provider", ViperKey: "theme.provider", Description: "Theme defaults source (none, file, redis)"},
	FlagThemePath:           {Name: "theme-path", ViperKey: "theme.path", Description: "Theme defaults file (JSON or TOML)"},
	FlagThemeRedisAddr:      {Name: "theme-redis-addr", ViperKey: "theme.redis_addr", Description: "Redis address for theme defaults"},
	FlagThemeTTL:            {Name: "theme-ttl", ViperKey: "theme.ttl", Description: "Theme defaults cache lifetime"},
	FlagThemeWatch:          {Name: "theme-watch", ViperKey: "theme.watch", Description: "Reload the theme file when it changes"},
	FlagEventStreamProvider: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Assembled message publisher (nop, kafka)"},
	FlagEventStreamBrokers:  {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventStreamTopic:    {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for assembled messages"},
	FlagLogJSON:             {Name: "log-json", ViperKey: "log.json", Description: "Write JSON logs"},
	FlagLogPretty:           {Name: "log-pretty", ViperKey: "log.pretty", Description: "Write colorized human-friendly logs"},
	FlagLogFile:             {Name: "log-file", ViperKey: "log.file", Description: "Also write JSON logs to this file"},
}

// Keys returns the registry keys of fs.
func (fs FlagSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	return keys
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
