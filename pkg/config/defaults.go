package config

const (
	defaultListen   = ":8080"
	defaultUpstream = "http://localhost:9000"
	defaultChatPath = "/chat/completions"

	defaultThemeProvider = ThemeProviderNone
	defaultThemeRedisKey = "streamrelay:theme:defaults"
	defaultThemeTTL      = "24h"

	defaultEventStreamProvider = EventStreamProviderNop
	defaultEventStreamTopic    = "streamrelay.messages"
)

// Theme providers.
const (
	ThemeProviderNone  = "none"
	ThemeProviderFile  = "file"
	ThemeProviderRedis = "redis"
)

// Event stream providers.
const (
	EventStreamProviderNop   = "nop"
	EventStreamProviderKafka = "kafka"
)

var (
	ThemeProviders       = []string{ThemeProviderNone, ThemeProviderFile, ThemeProviderRedis}
	EventStreamProviders = []string{EventStreamProviderNop, EventStreamProviderKafka}
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:   defaultListen,
			Upstream: defaultUpstream,
			ChatPath: defaultChatPath,
		},
		Theme: ThemeConfig{
			Provider: defaultThemeProvider,
			RedisKey: defaultThemeRedisKey,
			TTL:      defaultThemeTTL,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
