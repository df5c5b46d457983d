package theme

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/streamrelay/pkg/metrics"
)

// DefaultTTL is how long loaded defaults are served before a refresh.
const DefaultTTL = 24 * time.Hour

// DefaultRetryBackoff is how long a failed load is remembered before readers
// try the source again.
const DefaultRetryBackoff = 5 * time.Second

const (
	refreshKey  = "defaults"
	loadTimeout = 10 * time.Second
)

type snapshot struct {
	value     Defaults
	expiresAt time.Time
}

type failure struct {
	err        error
	retryAfter time.Time
}

// Cache holds theme defaults loaded from a Source with an explicit expiry.
//
// Reads are lock-free: the loaded value is published as an immutable
// snapshot and swapped atomically. An expired snapshot is refreshed lazily by
// the first reader, concurrent readers share that refresh. When a refresh
// fails the stale snapshot keeps being served, and readers do not retry the
// source until the backoff has passed.
type Cache struct {
	source  Source
	ttl     time.Duration
	backoff time.Duration
	now     func() time.Time
	logger  *slog.Logger

	snap   atomic.Pointer[snapshot]
	failed atomic.Pointer[failure]
	group  singleflight.Group
	loads  atomic.Int64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock sets the clock used for expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithTTL sets how long a loaded snapshot stays fresh.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRetryBackoff sets how long readers wait after a failed load before
// loading again. Zero retries on every read.
func WithRetryBackoff(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithLogger sets the logger used to report refresh failures.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates a Cache over src. Nothing is loaded until the first Get.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		source: src,
		ttl:     DefaultTTL,
		backoff: DefaultRetryBackoff,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the defaults for themeID. The boolean is false when the theme
// has no defaults.
func (c *Cache) Get(ctx context.Context, themeID string) (map[string]any, bool, error) {
	defaults, err := c.Defaults(ctx)
	if err != nil {
		return nil, false, err
	}
	base, ok := defaults[themeID]
	return base, ok, nil
}

// Defaults returns the current snapshot, refreshing it first if it expired.
func (c *Cache) Defaults(ctx context.Context) (Defaults, error) {
	now := c.now()
	snap := c.snap.Load()
	if snap != nil && now.Before(snap.expiresAt) {
		return snap.value, nil
	}

	if f := c.failed.Load(); f != nil && now.Before(f.retryAfter) {
		if snap != nil {
			return snap.value, nil
		}
		return nil, f.err
	}

	fresh, err := c.refresh(ctx)
	if err == nil {
		return fresh, nil
	}
	if snap != nil {
		c.logger.Warn("theme defaults refresh failed, serving stale value", "error", err)
		return snap.value, nil
	}
	return nil, err
}

// Refresh loads the defaults now regardless of expiry.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx)
	return err
}

// Invalidate marks the current snapshot expired and forgets any recent load
// failure, so the next read goes to the source. The old value is still
// served if that refresh fails.
func (c *Cache) Invalidate() {
	c.failed.Store(nil)
	for {
		snap := c.snap.Load()
		if snap == nil {
			return
		}
		expired := &snapshot{value: snap.value}
		if c.snap.CompareAndSwap(snap, expired) {
			return
		}
	}
}

// Loads returns how many times the source has been loaded.
func (c *Cache) Loads() int64 {
	return c.loads.Load()
}

func (c *Cache) refresh(ctx context.Context) (Defaults, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}

	// The shared load must not be cut short by whichever caller started it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
	defer cancel()

	v, err, _ := c.group.Do(refreshKey, func() (any, error) {
		c.loads.Add(1)
		value, err := c.source.Load(ctx)
		if err != nil {
			metrics.ThemeRefreshes.WithLabelValues("error").Inc()
			err = fmt.Errorf("loading theme defaults: %w", err)
			c.failed.Store(&failure{err: err, retryAfter: c.now().Add(c.backoff)})
			return nil, err
		}
		if value == nil {
			value = Defaults{}
		}
		c.failed.Store(nil)
		c.snap.Store(&snapshot{value: value, expiresAt: c.now().Add(c.ttl)})
		metrics.ThemeRefreshes.WithLabelValues("ok").Inc()
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Defaults), nil
}
