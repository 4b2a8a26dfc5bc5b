// Package remote implements the thin adapter to the distributed cache. The
// adapter degrades to permanently unavailable on connection failure; the
// manager then runs memory-only for the rest of the process lifetime.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"goflare.io/strata/internal/config"
	"goflare.io/strata/internal/models"
	"goflare.io/strata/internal/retrier"
	"goflare.io/strata/pkg/observability"
)

// Adapter is the remote tier client. All calls return ErrTierUnavailable once
// the adapter has degraded; no error escalates past the manager.
type Adapter struct {
	client        *redis.Client
	breaker       *gobreaker.CircuitBreaker
	retrier       *retrier.Retrier
	logger        *zap.Logger
	enableMetrics bool
	available     atomic.Bool
}

// New builds the adapter without connecting. When no endpoint is configured,
// remote is disabled, or the process runs in test mode, the adapter reports
// itself permanently unavailable and Connect is a no-op.
func New(cfg *config.Config) (*Adapter, error) {
	a := &Adapter{
		breaker:       gobreaker.NewCircuitBreaker(cfg.Resilience.CircuitBreaker),
		logger:        cfg.Logger,
		enableMetrics: cfg.EnableMetrics,
	}

	r, err := retrier.New(
		cfg.Resilience.RetryAttempts,
		cfg.Resilience.RetryBaseDelay,
		cfg.Resilience.RetryMaxDelay,
		cfg.Resilience.RetryFactor,
		cfg.Resilience.RetryJitter,
	)
	if err != nil {
		return nil, fmt.Errorf("build retrier: %w", err)
	}
	a.retrier = r

	if cfg.RemoteConfigured() {
		a.client = redis.NewClient(cfg.Redis)
	}

	return a, nil
}

// Connect attempts the one-shot connection made at manager initialization.
// Failure is not an error to the caller beyond the sentinel: the adapter
// simply stays unavailable.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.client == nil {
		a.logger.Info("remote cache not configured, running memory-only")
		return models.ErrTierUnavailable
	}

	if err := a.client.Ping(ctx).Err(); err != nil {
		a.logger.Warn("remote cache unreachable, falling back to memory-only mode", zap.Error(err))
		return models.ErrTierUnavailable
	}

	a.available.Store(true)
	a.logger.Info("remote cache connected")
	return nil
}

// Available reports whether the adapter can serve requests.
func (a *Adapter) Available() bool {
	return a.available.Load()
}

// Get retrieves the serialized payload for a key. Returns ErrKeyNotFound on
// a miss and ErrTierUnavailable when degraded or disabled.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if !a.Available() {
		return nil, models.ErrTierUnavailable
	}

	res, err := a.breaker.Execute(func() (any, error) {
		data, err := a.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrKeyNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("redis get: %w", err)
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			if a.enableMetrics {
				observability.Misses.WithLabelValues(observability.LayerRemote).Inc()
			}
			return nil, models.ErrKeyNotFound
		}
		a.observeError("get", err)
		return nil, err
	}

	if a.enableMetrics {
		observability.Hits.WithLabelValues(observability.LayerRemote).Inc()
	}
	return res.([]byte), nil
}

// SetWithTTL writes a serialized payload with an expiry, retrying transient
// failures.
func (a *Adapter) SetWithTTL(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if !a.Available() {
		return models.ErrTierUnavailable
	}

	err := a.retrier.Run(ctx, func() error {
		return a.client.Set(ctx, key, payload, ttl).Err()
	})
	if err != nil {
		a.observeError("set", err)
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if !a.Available() {
		return models.ErrTierUnavailable
	}

	err := a.retrier.Run(ctx, func() error {
		return a.client.Del(ctx, key).Err()
	})
	if err != nil {
		a.observeError("delete", err)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys returns all keys matching a glob pattern, walking the keyspace with
// SCAN to avoid blocking the server.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	if !a.Available() {
		return nil, models.ErrTierUnavailable
	}

	var keys []string
	iter := a.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		a.observeError("keys", err)
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// DeleteMany removes a batch of keys in one round trip.
func (a *Adapter) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if !a.Available() {
		return models.ErrTierUnavailable
	}

	err := a.retrier.Run(ctx, func() error {
		return a.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		a.observeError("delete_many", err)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (a *Adapter) Close() error {
	a.available.Store(false)
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// observeError logs a tier error and, for connection-class errors, flips the
// adapter into permanent memory-only fallback.
func (a *Adapter) observeError(op string, err error) {
	if a.enableMetrics {
		observability.Errors.WithLabelValues(op).Inc()
	}
	if isConnectionError(err) {
		if a.available.CompareAndSwap(true, false) {
			a.logger.Warn("remote cache connection lost, entering memory-only fallback mode",
				zap.String("operation", op), zap.Error(err))
		}
		return
	}
	a.logger.Warn("remote cache operation failed", zap.String("operation", op), zap.Error(err))
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, redis.ErrClosed)
}
