// Package strata is a multi-tier cache manager. It unifies a fast in-process
// LRU cache, an optional remote Redis cache, and durable client-side tiers
// behind a single get/set/delete contract with automatic fallback,
// best-effort cross-tier propagation, transparent compression, and
// operational metrics.
//
// The cache is advisory, never authoritative: a get may miss even right
// after a successful set if every tier write failed, and callers must be
// able to recompute any cached value from its source of truth.
package strata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"goflare.io/strata/internal/cache/memory"
	"goflare.io/strata/internal/cache/tiered"
	"goflare.io/strata/internal/config"
	"goflare.io/strata/internal/models"
	"goflare.io/strata/pkg/serialization"
)

// Option mutates the configuration during construction.
type Option = config.Option

// Preloader recomputes a critical key's value from its source of truth when
// the warm cycle finds it absent from every tier.
type Preloader = models.Preloader

// MemoryStats is the in-process tier's metrics snapshot.
type MemoryStats = memory.Stats

// Metrics aggregates the in-process tier's stats with coarse availability
// per backing tier ("connected", "disabled", "server-side-unavailable").
type Metrics = tiered.Metrics

// Cache is the public handle. Construct one instance at process start with
// New, call Initialize once (server side), pass the handle to all consumers,
// and call Disconnect on shutdown.
type Cache struct {
	manager *tiered.Manager
	logger  *zap.Logger
}

// New builds a Cache from options and environment configuration. The remote
// connection is not attempted until Initialize.
func New(opts ...Option) (*Cache, error) {
	cfg, err := config.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	manager, err := tiered.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache manager: %w", err)
	}

	return &Cache{manager: manager, logger: cfg.Logger}, nil
}

// Initialize attempts the one-shot remote connection and starts the periodic
// warm cycle. Call once at process start. A missing or unreachable remote is
// not an error; the cache falls back to memory-only operation.
func (c *Cache) Initialize(ctx context.Context) error {
	return c.manager.Initialize(ctx)
}

// Get retrieves a value into out, querying tiers in priority order and
// returning on the first hit. Returns false when every tier misses.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	return c.manager.Get(ctx, key, out)
}

// Set stores a value in every available tier concurrently. Individual tier
// failures never fail the call. Omitting ttl uses the medium default.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	return c.manager.Set(ctx, key, value, ttl...)
}

// Delete removes a key from the remote, in-process, and structured durable
// tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.manager.Delete(ctx, key)
}

// InvalidatePattern deletes matching keys from the remote tier and clears
// the entire in-process tier.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) error {
	return c.manager.InvalidatePattern(ctx, pattern)
}

// Metrics returns the aggregate metrics snapshot.
func (c *Cache) Metrics() Metrics {
	return c.manager.Metrics()
}

// Disconnect stops the warm cycle and closes the remote connection if open.
func (c *Cache) Disconnect() error {
	return c.manager.Disconnect()
}

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config.Config) error {
		if logger != nil {
			cfg.Logger = logger
		}
		return nil
	}
}

// WithMaxMemory sets the in-process tier's memory budget in bytes.
func WithMaxMemory(maxBytes int64) Option {
	return func(cfg *config.Config) error {
		if maxBytes <= 0 {
			return config.ErrMaxMemoryZero
		}
		cfg.MaxMemoryBytes = maxBytes
		return nil
	}
}

// WithCompression enables compression for values above threshold bytes.
func WithCompression(threshold int) Option {
	return func(cfg *config.Config) error {
		cfg.EnableCompression = true
		cfg.CompressionThresholdBytes = threshold
		return nil
	}
}

// WithoutCompression disables compression entirely.
func WithoutCompression() Option {
	return func(cfg *config.Config) error {
		cfg.EnableCompression = false
		return nil
	}
}

// WithoutMetrics disables the prometheus collectors.
func WithoutMetrics() Option {
	return func(cfg *config.Config) error {
		cfg.EnableMetrics = false
		return nil
	}
}

// WithRedis configures the remote tier from redis client options.
func WithRedis(options *redis.Options) Option {
	return func(cfg *config.Config) error {
		cfg.Redis = options
		return nil
	}
}

// WithRedisAddr configures the remote tier from a plain address.
func WithRedisAddr(addr string) Option {
	return func(cfg *config.Config) error {
		if addr != "" {
			cfg.Redis = &redis.Options{Addr: addr}
		}
		return nil
	}
}

// WithoutRemote forces memory-only mode regardless of endpoint configuration.
func WithoutRemote() Option {
	return func(cfg *config.Config) error {
		cfg.DisableRemote = true
		return nil
	}
}

// WithTTLDefaults overrides the named expiry buckets.
func WithTTLDefaults(short, medium, long, day time.Duration) Option {
	return func(cfg *config.Config) error {
		if short <= 0 || medium <= 0 || long <= 0 || day <= 0 {
			return fmt.Errorf("ttl defaults must be positive")
		}
		cfg.TTLDefaults = config.TTLDefaults{Short: short, Medium: medium, Long: long, Day: day}
		return nil
	}
}

// WithSerialization selects the payload codec: "json" or "gob".
func WithSerialization(serializer string) Option {
	return func(cfg *config.Config) error {
		switch serializer {
		case serialization.JSONType:
			cfg.Serialization.Type = serialization.JSONType
			cfg.Serialization.Encoder = serialization.JSONEncoder
			cfg.Serialization.Decoder = serialization.JSONDecoder
		case serialization.GobType:
			cfg.Serialization.Type = serialization.GobType
			cfg.Serialization.Encoder = serialization.GobEncoder
			cfg.Serialization.Decoder = serialization.GobDecoder
		default:
			return fmt.Errorf("unsupported serialization type: %s", serializer)
		}
		return nil
	}
}

// WithDurableFS backs the structured durable tier with a filesystem. Leave
// unset in a server execution context; the tier then becomes a no-op.
func WithDurableFS(fs billy.Filesystem) Option {
	return func(cfg *config.Config) error {
		cfg.DurableFS = fs
		return nil
	}
}

// WithStreamFS backs the coarse byte-stream tier with a filesystem. Leave
// unset in a server execution context; the tier then becomes a no-op.
func WithStreamFS(fs billy.Filesystem) Option {
	return func(cfg *config.Config) error {
		cfg.StreamFS = fs
		return nil
	}
}

// WithCriticalKeys sets the keys the periodic warm cycle keeps present.
func WithCriticalKeys(keys ...string) Option {
	return func(cfg *config.Config) error {
		cfg.CriticalKeys = keys
		return nil
	}
}

// WithPreloader sets the collaborator that recomputes absent critical keys.
func WithPreloader(p Preloader) Option {
	return func(cfg *config.Config) error {
		cfg.Preloader = p
		return nil
	}
}

// WithWarmInterval overrides the warm cycle period.
func WithWarmInterval(interval time.Duration) Option {
	return func(cfg *config.Config) error {
		if interval <= 0 {
			return fmt.Errorf("warm interval must be positive")
		}
		cfg.WarmInterval = interval
		return nil
	}
}
