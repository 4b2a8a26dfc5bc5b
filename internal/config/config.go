// Package config holds the process-wide cache configuration. A Config is
// immutable after construction: options are applied in New and never again.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"goflare.io/strata/internal/models"
	"goflare.io/strata/pkg/serialization"
)

// TTLDefaults are the named expiry buckets callers pick from.
type TTLDefaults struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
	Day    time.Duration
}

// SerializationConfig selects the payload encoder and decoder.
type SerializationConfig struct {
	Type    string
	Encoder serialization.EncoderFactory
	Decoder serialization.DecoderFactory
}

// ResilienceConfig bounds retries and circuit breaking on the remote tier.
type ResilienceConfig struct {
	CircuitBreaker gobreaker.Settings
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RetryFactor    float64
	RetryJitter    float64
}

// BloomConfig sizes the negative-lookup filter guarding remote queries.
type BloomConfig struct {
	ExpectedItems     uint
	FalsePositiveRate float64
}

// Config is the process-wide cache configuration.
type Config struct {
	MaxMemoryBytes            int64
	CompressionThresholdBytes int
	EnableCompression         bool
	EnableMetrics             bool
	TTLDefaults               TTLDefaults

	// Redis is nil when no remote endpoint is configured.
	Redis         *redis.Options
	DisableRemote bool
	TestMode      bool

	// DurableFS backs the structured durable tier; StreamFS backs the coarse
	// byte-stream tier. Nil means the tier is unavailable in this execution
	// context (server side) and is treated as a no-op.
	DurableFS billy.Filesystem
	StreamFS  billy.Filesystem

	WarmInterval time.Duration
	CriticalKeys []string

	// Preloader recomputes absent critical keys during the warm cycle. Nil
	// disables preloading; presence checks still run.
	Preloader models.Preloader

	Serialization SerializationConfig
	Resilience    ResilienceConfig
	Bloom         BloomConfig
	Logger        *zap.Logger
}

// ErrMaxMemoryZero is returned when the memory budget is not positive.
var ErrMaxMemoryZero = errors.New("max memory bytes must be greater than 0")

// Option mutates a Config during construction.
type Option func(*Config) error

// New creates a Config with production defaults, then applies options and
// environment overrides.
func New(options ...Option) (*Config, error) {
	cfg := &Config{
		MaxMemoryBytes:            100 * 1024 * 1024, // 100MB
		CompressionThresholdBytes: 1024,
		EnableCompression:         true,
		EnableMetrics:             true,
		TTLDefaults: TTLDefaults{
			Short:  5 * time.Minute,
			Medium: 30 * time.Minute,
			Long:   time.Hour,
			Day:    24 * time.Hour,
		},
		WarmInterval: 30 * time.Minute,
		Serialization: SerializationConfig{
			Type:    serialization.JSONType,
			Encoder: serialization.JSONEncoder,
			Decoder: serialization.JSONDecoder,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: gobreaker.Settings{
				Name:        "strata-remote",
				MaxRequests: 3,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
			},
			RetryAttempts:  3,
			RetryBaseDelay: 100 * time.Millisecond,
			RetryMaxDelay:  time.Second,
			RetryFactor:    2,
			RetryJitter:    0.1,
		},
		Bloom: BloomConfig{
			ExpectedItems:     10000,
			FalsePositiveRate: 0.01,
		},
	}

	applyEnv(cfg)

	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		cfg.Logger = logger
	}

	if cfg.MaxMemoryBytes <= 0 {
		return nil, ErrMaxMemoryZero
	}

	return cfg, nil
}

// applyEnv reads the environment-supplied configuration surface. CI is
// honoured alongside the explicit test-mode flag so pipelines never reach for
// a remote endpoint.
func applyEnv(cfg *Config) {
	if addr := os.Getenv("STRATA_REDIS_ADDR"); addr != "" {
		cfg.Redis = &redis.Options{Addr: addr}
	}
	if boolEnv("STRATA_DISABLE_REMOTE") {
		cfg.DisableRemote = true
	}
	if boolEnv("STRATA_TEST_MODE") || boolEnv("CI") {
		cfg.TestMode = true
	}
	if v, ok := os.LookupEnv("STRATA_ENABLE_COMPRESSION"); ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.EnableCompression = enabled
		}
	}
}

func boolEnv(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}

// RemoteConfigured reports whether the remote tier should be attempted at
// initialization.
func (c *Config) RemoteConfigured() bool {
	return c.Redis != nil && !c.DisableRemote && !c.TestMode
}
