package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/papercomputeco/streamrelay/pkg/config"
	"github.com/papercomputeco/streamrelay/pkg/eventstream"
	"github.com/papercomputeco/streamrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/streamrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/streamrelay/pkg/theme"
)

// themeStack is the theme cache together with whatever must be torn down
// alongside it.
type themeStack struct {
	cache   *theme.Cache
	file    *theme.FileSource
	closers []io.Closer
}

func (t *themeStack) Close() error {
	var errs []error
	for _, c := range t.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newThemeStack builds the theme defaults cache for the configured provider.
// Provider "none" yields a nil cache, which merges theme frames over an empty
// object.
func newThemeStack(cfg config.ThemeConfig, logger *slog.Logger) (*themeStack, error) {
	ttl, err := config.ParseDuration("theme.ttl", cfg.TTL)
	if err != nil {
		return nil, err
	}

	opts := []theme.CacheOption{theme.WithLogger(logger)}
	if ttl > 0 {
		opts = append(opts, theme.WithTTL(ttl))
	}

	stack := &themeStack{}
	switch cfg.Provider {
	case "", config.ThemeProviderNone:
		return stack, nil

	case config.ThemeProviderFile:
		if cfg.Path == "" {
			return nil, errors.New("theme.path is required for the file theme provider")
		}
		stack.file = theme.NewFileSource(cfg.Path)
		stack.cache = theme.NewCache(stack.file, opts...)

	case config.ThemeProviderRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("theme.redis_addr is required for the redis theme provider")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		stack.closers = append(stack.closers, client)
		stack.cache = theme.NewCache(theme.NewRedisSource(client, cfg.RedisKey, logger), opts...)

	default:
		return nil, fmt.Errorf("unknown theme provider: %q", cfg.Provider)
	}

	return stack, nil
}

// warm loads the defaults once so configuration mistakes surface at startup.
func (t *themeStack) warm(ctx context.Context) error {
	if t.cache == nil {
		return nil
	}
	return t.cache.Refresh(ctx)
}

// watch invalidates the cache on file changes until ctx is done. It is a
// no-op for non-file providers.
func (t *themeStack) watch(ctx context.Context, logger *slog.Logger) {
	if t.file == nil {
		return
	}
	go func() {
		if err := t.file.Watch(ctx, t.cache, logger); err != nil {
			logger.Error("theme file watch stopped", "path", t.file.Path, "error", err)
		}
	}()
}

// newPublisher creates the assembled message publisher for the configured
// provider.
func newPublisher(cfg config.EventStreamConfig) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", config.EventStreamProviderNop:
		return nop.NewPublisher(), nil

	case config.EventStreamProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown eventstream provider: %q", cfg.Provider)
	}
}
