// Package memory implements the in-process cache tier: a fixed memory-budget,
// LRU-evicted, TTL-aware key/value store with per-tier metrics.
package memory

import (
	"container/list"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"goflare.io/strata/internal/models"
	"goflare.io/strata/pkg/compress"
	"goflare.io/strata/pkg/observability"
	"goflare.io/strata/pkg/serialization"
)

// defaultSizeEstimate is charged against the memory budget when a value
// cannot be serialized for sizing. The write still proceeds.
const defaultSizeEstimate = 1024

// responseWindowSize bounds the trailing response-time window.
const responseWindowSize = 100

// Options configure a Cache.
type Options struct {
	MaxMemoryBytes       int64
	CompressionThreshold int
	EnableCompression    bool
	EnableMetrics        bool
	DefaultTTL           time.Duration
	Encoder              serialization.EncoderFactory
	Decoder              serialization.DecoderFactory
	Logger               *zap.Logger
}

// item is the ledger payload: key plus its entry.
type item struct {
	key   string
	entry *models.Entry
}

// Cache is the in-process tier. The entry map and access-order ledger are
// guarded by a single mutex; get/set/delete never suspend.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	ledger  *list.List // access order, most recently used at the back
	usage   int64

	maxBytes          int64
	threshold         int
	enableCompression bool
	enableMetrics     bool
	defaultTTL        time.Duration
	encoder           serialization.EncoderFactory
	decoder           serialization.DecoderFactory
	logger            *zap.Logger

	hits      int64
	misses    int64
	evictions int64

	// cumulative raw vs stored bytes over compressed writes
	rawBytes    int64
	storedBytes int64

	respTimes [responseWindowSize]float64
	respCount int
	respIdx   int
}

// New creates the in-process tier.
func New(opts Options) *Cache {
	if opts.Encoder == nil {
		opts.Encoder = serialization.JSONEncoder
	}
	if opts.Decoder == nil {
		opts.Decoder = serialization.JSONDecoder
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 30 * time.Minute
	}

	return &Cache{
		entries:           make(map[string]*list.Element),
		ledger:            list.New(),
		maxBytes:          opts.MaxMemoryBytes,
		threshold:         opts.CompressionThreshold,
		enableCompression: opts.EnableCompression,
		enableMetrics:     opts.EnableMetrics,
		defaultTTL:        opts.DefaultTTL,
		encoder:           opts.Encoder,
		decoder:           opts.Decoder,
		logger:            opts.Logger,
	}
}

// Get retrieves a value into out, which must be a non-nil pointer. Returns
// false when the key is absent or expired; an expired entry is removed on
// the read that discovers it.
func (c *Cache) Get(key string, out any) (bool, error) {
	start := time.Now()

	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		c.countMiss()
		return false, nil
	}

	it := elem.Value.(*item)
	if it.entry.IsExpired() {
		c.removeLocked(key, elem)
		c.misses++
		c.mu.Unlock()
		c.countMiss()
		return false, nil
	}

	it.entry.Touch()
	c.ledger.MoveToBack(elem)
	c.hits++

	data := it.entry.Data
	value := it.entry.Value
	compressed := it.entry.Compressed

	c.recordResponseLocked(float64(time.Since(start).Nanoseconds()) / 1e6)
	c.mu.Unlock()
	c.countHit()

	if data == nil {
		// Stored live after a serialization failure; hand it back directly.
		return true, assign(out, value)
	}
	if compressed {
		data = compress.Decompress(data)
	}
	if err := serialization.Unmarshal(c.decoder, data, out); err != nil {
		return false, fmt.Errorf("decode cached value for key %s: %w", key, err)
	}
	return true, nil
}

// Peek returns the serialized (decompressed) payload without touching hit
// counts, access order, or the response window. Used for cross-tier
// propagation after a hit has already been counted.
func (c *Cache) Peek(key string) ([]byte, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	it := elem.Value.(*item)
	if it.entry.IsExpired() || it.entry.Data == nil {
		c.mu.Unlock()
		return nil, false
	}
	data := it.entry.Data
	compressed := it.entry.Compressed
	c.mu.Unlock()

	if compressed {
		data = compress.Decompress(data)
	}
	return data, true
}

// Set stores a value. The serialized size is charged against the memory
// budget; least-recently-used entries are evicted until the new entry fits.
// A value that cannot be serialized is stored live with a default size
// estimate rather than rejected.
func (c *Cache) Set(key string, value any, ttl ...time.Duration) {
	data, err := serialization.Marshal(c.encoder, value)
	if err != nil {
		c.logger.Warn("failed to serialize value for sizing, using default estimate",
			zap.String("key", key), zap.Error(err))
		c.store(key, nil, value, defaultSizeEstimate, false, c.expiry(ttl...))
		return
	}
	c.SetBytes(key, data, ttl...)
}

// SetBytes stores an already-serialized payload, compressing above the
// threshold when compression is enabled.
func (c *Cache) SetBytes(key string, data []byte, ttl ...time.Duration) {
	rawSize := int64(len(data))
	compressed := false

	if c.enableCompression && len(data) > c.threshold {
		packed, err := compress.Compress(data)
		if err != nil {
			c.logger.Warn("failed to compress value, storing uncompressed",
				zap.String("key", key), zap.Error(err))
		} else if len(packed) < len(data) {
			data = packed
			compressed = true
		}
	}

	c.store(key, data, nil, rawSize, compressed, c.expiry(ttl...))
}

func (c *Cache) expiry(ttl ...time.Duration) time.Time {
	d := c.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}
	return time.Now().Add(d)
}

func (c *Cache) store(key string, data []byte, value any, rawSize int64, compressed bool, expiration time.Time) {
	entry := models.NewEntry(data, expiration, compressed)
	entry.Value = value
	if data == nil {
		entry.SizeBytes = rawSize
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace an existing entry before accounting for the new one.
	if elem, ok := c.entries[key]; ok {
		c.usage -= elem.Value.(*item).entry.SizeBytes
		c.ledger.Remove(elem)
		delete(c.entries, key)
	}

	// Evict from the front of the ledger (least recently used) until the new
	// entry fits. A value larger than the whole budget empties the cache and
	// is still inserted; there is no rejection policy.
	for c.usage+entry.SizeBytes > c.maxBytes && c.ledger.Len() > 0 {
		c.evictOldestLocked()
	}
	if entry.SizeBytes > c.maxBytes {
		c.logger.Warn("cache entry exceeds the entire memory budget, inserting anyway",
			zap.String("key", key),
			zap.Int64("size_bytes", entry.SizeBytes),
			zap.Int64("max_memory_bytes", c.maxBytes))
	}

	elem := c.ledger.PushBack(&item{key: key, entry: entry})
	c.entries[key] = elem
	c.usage += entry.SizeBytes

	if compressed {
		c.rawBytes += rawSize
		c.storedBytes += entry.SizeBytes
	}
	if c.enableMetrics {
		observability.MemoryUsage.WithLabelValues(observability.LayerMemory).Set(float64(c.usage))
	}
}

// Delete removes an entry if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(key, elem)
	}
}

// Clear drops all entries and resets memory usage. The eviction counter is
// incremented by one to mark the clear event.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.ledger.Init()
	c.usage = 0
	c.evictions++

	if c.enableMetrics {
		observability.MemoryUsage.WithLabelValues(observability.LayerMemory).Set(0)
		observability.Evictions.WithLabelValues(observability.LayerMemory).Inc()
	}
}

// Len returns the number of physically present entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the ledger's keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.ledger.Len())
	for elem := c.ledger.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*item).key)
	}
	return keys
}

func (c *Cache) evictOldestLocked() {
	front := c.ledger.Front()
	if front == nil {
		return
	}
	it := front.Value.(*item)
	c.ledger.Remove(front)
	delete(c.entries, it.key)
	c.usage -= it.entry.SizeBytes
	c.evictions++

	if c.enableMetrics {
		observability.Evictions.WithLabelValues(observability.LayerMemory).Inc()
	}
	c.logger.Debug("evicted least recently used entry",
		zap.String("key", it.key), zap.Int64("size_bytes", it.entry.SizeBytes))
}

// removeLocked deletes an entry and decrements memory usage exactly once.
func (c *Cache) removeLocked(key string, elem *list.Element) {
	c.ledger.Remove(elem)
	delete(c.entries, key)
	c.usage -= elem.Value.(*item).entry.SizeBytes

	if c.enableMetrics {
		observability.MemoryUsage.WithLabelValues(observability.LayerMemory).Set(float64(c.usage))
	}
}

func (c *Cache) recordResponseLocked(ms float64) {
	c.respTimes[c.respIdx] = ms
	c.respIdx = (c.respIdx + 1) % responseWindowSize
	if c.respCount < responseWindowSize {
		c.respCount++
	}
}

func (c *Cache) countHit() {
	if c.enableMetrics {
		observability.Hits.WithLabelValues(observability.LayerMemory).Inc()
	}
}

func (c *Cache) countMiss() {
	if c.enableMetrics {
		observability.Misses.WithLabelValues(observability.LayerMemory).Inc()
	}
}

// assign copies a live stored value into the caller's pointer.
func assign(out, value any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("out must be a non-nil pointer, got %T", out)
	}
	ev := reflect.ValueOf(value)
	if !ev.IsValid() {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	if !ev.Type().AssignableTo(rv.Elem().Type()) {
		return fmt.Errorf("cached value of type %T is not assignable to %T", value, out)
	}
	rv.Elem().Set(ev)
	return nil
}
