// Package tiered implements the cache orchestrator: it composes the remote,
// in-process, and durable tiers behind a single get/set/delete contract with
// automatic fallback and best-effort cross-tier propagation.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/strata/internal/cache/durable"
	"goflare.io/strata/internal/cache/memory"
	"goflare.io/strata/internal/cache/remote"
	"goflare.io/strata/internal/config"
	"goflare.io/strata/internal/models"
	"goflare.io/strata/pkg/serialization"
)

// Manager lifecycle states.
const (
	stateUninitialized int32 = iota
	stateReady
	stateStopped
)

// propagationTimeout bounds detached cross-tier writes.
const propagationTimeout = 5 * time.Second

// Metrics is the manager's aggregate snapshot: the in-process tier's full
// stats plus coarse availability per backing tier.
type Metrics struct {
	Memory  memory.Stats      `json:"memory"`
	Remote  models.TierStatus `json:"remote"`
	Durable models.TierStatus `json:"durable"`
	Stream  models.TierStatus `json:"stream"`
}

// Manager composes all tiers. Tier queries within a Get are strictly
// sequential in priority order; Set fans out to all available tiers
// concurrently with an all-settled join.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger
	tracer trace.Tracer

	memory  *memory.Cache
	remote  *remote.Adapter
	durable *durable.Store
	stream  *durable.StreamStore

	sf       singleflight.Group
	filter   *bloom.BloomFilter
	filterMu sync.Mutex

	preloader  models.Preloader
	warmCancel context.CancelFunc
	state      atomic.Int32
	background sync.WaitGroup
}

// NewManager wires the tiers from configuration. The remote connection is not
// attempted until Initialize.
func NewManager(cfg *config.Config) (*Manager, error) {
	adapter, err := remote.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build remote adapter: %w", err)
	}

	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		tracer: otel.Tracer("strata"),
		memory: memory.New(memory.Options{
			MaxMemoryBytes:       cfg.MaxMemoryBytes,
			CompressionThreshold: cfg.CompressionThresholdBytes,
			EnableCompression:    cfg.EnableCompression,
			EnableMetrics:        cfg.EnableMetrics,
			DefaultTTL:           cfg.TTLDefaults.Medium,
			Encoder:              cfg.Serialization.Encoder,
			Decoder:              cfg.Serialization.Decoder,
			Logger:               cfg.Logger,
		}),
		remote:    adapter,
		durable:   durable.NewStore(cfg.DurableFS, cfg.TTLDefaults.Day, cfg.Logger),
		stream:    durable.NewStreamStore(cfg.StreamFS, cfg.Logger),
		filter:    bloom.NewWithEstimates(cfg.Bloom.ExpectedItems, cfg.Bloom.FalsePositiveRate),
		preloader: cfg.Preloader,
	}, nil
}

// Initialize attempts the one-shot remote connection and starts the periodic
// warm cycle. A failed connection is not an error: the manager runs
// memory-only for the rest of the process lifetime.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.state.CompareAndSwap(stateUninitialized, stateReady) {
		return errors.New("cache manager already initialized")
	}

	if err := m.remote.Connect(ctx); err != nil && !errors.Is(err, models.ErrTierUnavailable) {
		return fmt.Errorf("connect remote cache: %w", err)
	}

	warmCtx, cancel := context.WithCancel(context.Background())
	m.warmCancel = cancel
	m.background.Add(1)
	go m.warmLoop(warmCtx)

	m.logger.Info("cache manager ready",
		zap.Bool("remote_available", m.remote.Available()),
		zap.Bool("durable_available", m.durable.Available()),
		zap.Bool("stream_available", m.stream.Available()))
	return nil
}

// Get queries tiers in priority order remote -> in-process -> durable ->
// stream, returning on the first hit. A hit from a lower tier is bubbled up
// asynchronously; a miss in a higher tier never deletes lower-tier data.
func (m *Manager) Get(ctx context.Context, key string, out any) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "Cache.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	// Remote first. The bloom filter of keys ever written gates the network
	// round trip; a false positive only costs one harmless query.
	if m.remote.Available() && m.filterTest(key) {
		v, err, _ := m.sf.Do(key, func() (any, error) {
			return m.remote.Get(ctx, key)
		})
		if err == nil {
			decErr := m.decode(v.([]byte), out)
			if decErr == nil {
				return true, nil
			}
			m.logger.Warn("failed to decode remote payload, falling through",
				zap.String("key", key), zap.Error(decErr))
		} else if !errors.Is(err, models.ErrKeyNotFound) && !errors.Is(err, models.ErrTierUnavailable) {
			m.logger.Warn("remote get failed, falling through", zap.String("key", key), zap.Error(err))
		}
	}

	// In-process tier. On a hit, write behind to remote only; redundant local
	// writes are skipped.
	found, err := m.memory.Get(key, out)
	if err != nil {
		m.logger.Warn("memory get failed, falling through", zap.String("key", key), zap.Error(err))
	} else if found {
		if m.remote.Available() {
			if payload, ok := m.memory.Peek(key); ok {
				m.propagate(key, payload, false)
			}
		}
		return true, nil
	}

	// Durable tiers. On a hit, back-fill both in-process and remote.
	if payload, ok := m.durable.Get(key); ok {
		decErr := m.decode(payload, out)
		if decErr == nil {
			m.propagate(key, payload, true)
			return true, nil
		}
		m.logger.Warn("failed to decode durable payload, falling through",
			zap.String("key", key), zap.Error(decErr))
	}

	if payload, ok := m.stream.Get(key); ok {
		if decErr := m.decode(payload, out); decErr == nil {
			m.propagate(key, payload, true)
			return true, nil
		}
		m.logger.Warn("failed to decode stream payload, treating as miss", zap.String("key", key))
	}

	return false, nil
}

// Set serializes the value once and fans the write out to every available
// tier concurrently. Individual tier failures are logged and never fail the
// call; completion means all writes settled, not all succeeded.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	ctx, span := m.tracer.Start(ctx, "Cache.Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	d := m.cfg.TTLDefaults.Medium
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	payload, err := serialization.Marshal(m.cfg.Serialization.Encoder, value)
	if err != nil {
		// The in-process tier can still hold the live value; the other tiers
		// lose this write.
		m.logger.Warn("failed to serialize value, write limited to the in-process tier",
			zap.String("key", key), zap.Error(err))
		m.memory.Set(key, value, d)
		m.filterAdd(key)
		return nil
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.memory.SetBytes(key, payload, d)
	}()

	if m.remote.Available() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.remote.SetWithTTL(ctx, key, payload, d); err != nil {
				m.logger.Warn("remote set failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	if m.durable.Available() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.durable.Set(key, payload, d); err != nil {
				m.logger.Warn("durable set failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	if m.stream.Available() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.stream.Set(key, payload); err != nil {
				m.logger.Warn("stream set failed", zap.String("key", key), zap.Error(err))
			}
		}()
	}

	wg.Wait()
	m.filterAdd(key)
	return nil
}

// Delete removes a key from the remote, in-process, and structured durable
// tiers. The stream tier has no per-key delete and relies on its own
// retention policy.
func (m *Manager) Delete(ctx context.Context, key string) error {
	ctx, span := m.tracer.Start(ctx, "Cache.Delete", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	if m.remote.Available() {
		if err := m.remote.Delete(ctx, key); err != nil {
			m.logger.Warn("remote delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	m.memory.Delete(key)
	m.durable.Delete(key)
	return nil
}

// InvalidatePattern deletes matching keys from the remote tier and clears the
// entire in-process tier. The in-process tier does not index by pattern, so
// invalidation there is coarse. The bloom filter is left intact: it has no
// delete, and stale positives only cost harmless remote queries.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	ctx, span := m.tracer.Start(ctx, "Cache.InvalidatePattern", trace.WithAttributes(attribute.String("pattern", pattern)))
	defer span.End()

	if m.remote.Available() {
		keys, err := m.remote.Keys(ctx, pattern)
		if err != nil {
			m.logger.Warn("remote pattern query failed", zap.String("pattern", pattern), zap.Error(err))
		} else if err := m.remote.DeleteMany(ctx, keys); err != nil {
			m.logger.Warn("remote pattern delete failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}

	m.memory.Clear()
	return nil
}

// Metrics returns the in-process tier's stats plus per-tier availability.
func (m *Manager) Metrics() Metrics {
	return Metrics{
		Memory:  m.memory.Stats(),
		Remote:  remoteStatus(m.remote),
		Durable: durableStatus(m.durable.Available()),
		Stream:  durableStatus(m.stream.Available()),
	}
}

// Disconnect stops the warm cycle, waits for in-flight propagation, and
// closes the remote connection if open.
func (m *Manager) Disconnect() error {
	if !m.state.CompareAndSwap(stateReady, stateStopped) {
		return nil
	}
	if m.warmCancel != nil {
		m.warmCancel()
	}
	m.background.Wait()
	return m.remote.Close()
}

// propagate bubbles a payload up after a hit: always to remote, and to the
// in-process tier as well after a durable hit. Detached, best effort, errors
// feed only the logger.
func (m *Manager) propagate(key string, payload []byte, fillMemory bool) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic during cache propagation",
					zap.String("key", key), zap.Any("panic", r), zap.Stack("stack"))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), propagationTimeout)
		defer cancel()

		if fillMemory {
			m.memory.SetBytes(key, payload, m.cfg.TTLDefaults.Medium)
		}
		if m.remote.Available() {
			if err := m.remote.SetWithTTL(ctx, key, payload, m.cfg.TTLDefaults.Medium); err != nil {
				m.logger.Debug("write-behind to remote failed", zap.String("key", key), zap.Error(err))
			}
		}
	}()
}

func (m *Manager) decode(payload []byte, out any) error {
	return serialization.Unmarshal(m.cfg.Serialization.Decoder, payload, out)
}

func (m *Manager) filterAdd(key string) {
	m.filterMu.Lock()
	m.filter.AddString(key)
	m.filterMu.Unlock()
}

func (m *Manager) filterTest(key string) bool {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	return m.filter.TestString(key)
}

func remoteStatus(a *remote.Adapter) models.TierStatus {
	if a.Available() {
		return models.StatusConnected
	}
	return models.StatusDisabled
}

func durableStatus(available bool) models.TierStatus {
	if available {
		return models.StatusConnected
	}
	return models.StatusServerSideUnavailable
}
