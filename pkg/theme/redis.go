package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding theme defaults, one field per theme ID.
const DefaultRedisKey = "streamrelay:theme:defaults"

// RedisSource loads theme defaults from a Redis hash whose fields are theme
// IDs and whose values are JSON objects.
type RedisSource struct {
	client redis.Cmdable
	key    string
	logger *slog.Logger
}

// NewRedisSource creates a RedisSource reading key. An empty key uses
// DefaultRedisKey.
func NewRedisSource(client redis.Cmdable, key string, logger *slog.Logger) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisSource{client: client, key: key, logger: logger}
}

// Load reads the whole hash. Fields that do not hold a JSON object are
// skipped with a warning.
func (r *RedisSource) Load(ctx context.Context) (Defaults, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading theme defaults from redis: %w", err)
	}

	defaults := make(Defaults, len(fields))
	for id, raw := range fields {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
			r.logger.Warn("skipping malformed theme defaults", "theme", id, "key", r.key)
			continue
		}
		defaults[id] = obj
	}
	return defaults, nil
}

// Store writes the defaults for one theme.
func (r *RedisSource) Store(ctx context.Context, themeID string, base map[string]any) error {
	data, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("encoding theme defaults: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, themeID, data).Err(); err != nil {
		return fmt.Errorf("writing theme defaults to redis: %w", err)
	}
	return nil
}
