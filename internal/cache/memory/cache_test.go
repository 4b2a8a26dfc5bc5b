package memory

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, maxBytes int64, compression bool) *Cache {
	t.Helper()
	return New(Options{
		MaxMemoryBytes:       maxBytes,
		CompressionThreshold: 100,
		EnableCompression:    compression,
		DefaultTTL:           time.Minute,
	})
}

func TestCache_SetAndGet(t *testing.T) {
	c := newTestCache(t, 1024*1024, false)

	type flavor struct {
		Name   string  `json:"name"`
		Rating float64 `json:"rating"`
	}

	c.Set("data:flavors:vanilla", flavor{Name: "vanilla", Rating: 4.8})

	var got flavor
	found, err := c.Get("data:flavors:vanilla", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "vanilla", got.Name)
	assert.Equal(t, 4.8, got.Rating)
}

func TestCache_GetMissingKey(t *testing.T) {
	c := newTestCache(t, 1024, false)

	var got string
	found, err := c.Get("absent", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_LRUEvictionOrder(t *testing.T) {
	// maxMemoryBytes = 150; three 40-byte entries a, b, c fit at 120.
	// Reading a moves it off the eviction front, so inserting d evicts b
	// alone, leaving {c, a, d} at 120 bytes.
	c := newTestCache(t, 150, false)

	payload := []byte(`"` + strings.Repeat("x", 38) + `"`)
	require.Len(t, payload, 40)
	c.SetBytes("a", payload)
	c.SetBytes("b", payload)
	c.SetBytes("c", payload)

	var got string
	found, err := c.Get("a", &got)
	require.NoError(t, err)
	require.True(t, found)

	c.SetBytes("d", payload)

	assert.Equal(t, []string{"c", "a", "d"}, c.Keys())

	stats := c.Stats()
	assert.Equal(t, int64(120), stats.MemoryUsageBytes)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestCache_EvictionCascades(t *testing.T) {
	// A write bigger than the remaining headroom evicts from the front of
	// the ledger until it fits, oldest first.
	c := newTestCache(t, 100, false)

	c.SetBytes("a", bytes.Repeat([]byte("x"), 40))
	c.SetBytes("b", bytes.Repeat([]byte("x"), 40))

	c.SetBytes("wide", bytes.Repeat([]byte("x"), 90))

	assert.Equal(t, []string{"wide"}, c.Keys())

	stats := c.Stats()
	assert.Equal(t, int64(90), stats.MemoryUsageBytes)
	assert.Equal(t, int64(2), stats.Evictions)
}

func TestCache_MemoryNeverExceedsBudget(t *testing.T) {
	const maxBytes = 500
	c := newTestCache(t, maxBytes, false)

	payload := bytes.Repeat([]byte("y"), 120)
	for _, key := range []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"} {
		c.SetBytes(key, payload)
		assert.LessOrEqual(t, c.Stats().MemoryUsageBytes, int64(maxBytes))
	}
}

func TestCache_OversizedValueStillInserted(t *testing.T) {
	c := newTestCache(t, 100, false)

	c.SetBytes("small", bytes.Repeat([]byte("a"), 40))

	// Larger than the whole budget: eviction empties the cache and the
	// value is inserted anyway.
	c.SetBytes("huge", bytes.Repeat([]byte("b"), 200))

	assert.Equal(t, []string{"huge"}, c.Keys())
	assert.Equal(t, int64(200), c.Stats().MemoryUsageBytes)
}

func TestCache_ReplaceUpdatesUsage(t *testing.T) {
	c := newTestCache(t, 1024, false)

	c.SetBytes("k", bytes.Repeat([]byte("a"), 100))
	require.Equal(t, int64(100), c.Stats().MemoryUsageBytes)

	c.SetBytes("k", bytes.Repeat([]byte("b"), 60))
	assert.Equal(t, int64(60), c.Stats().MemoryUsageBytes)
	assert.Equal(t, 1, c.Len())
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, 1024, false)

	c.Set("short-lived", "value", 50*time.Millisecond)

	var got string
	found, err := c.Get("short-lived", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value", got)

	time.Sleep(80 * time.Millisecond)

	// First read after expiry removes the entry.
	found, err = c.Get("short-lived", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().MemoryUsageBytes)

	// A second read is an ordinary miss, no error.
	found, err = c.Get("short-lived", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_HitRate(t *testing.T) {
	c := newTestCache(t, 1024, false)

	// No requests yet: exactly zero, no division by zero.
	assert.Equal(t, float64(0), c.Stats().HitRate)

	c.Set("k", "v")

	var got string
	for i := 0; i < 3; i++ {
		_, err := c.Get("k", &got)
		require.NoError(t, err)
	}
	_, err := c.Get("missing", &got)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-9)
}

func TestCache_CompressionAboveThreshold(t *testing.T) {
	c := newTestCache(t, 1024*1024, true)

	value := strings.Repeat("the same phrase over and over ", 200)
	c.Set("big", value)

	var got string
	found, err := c.Get("big", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, value, got)

	stats := c.Stats()
	assert.Greater(t, stats.CompressionRatioPercent, float64(0))
	assert.Less(t, stats.CompressionRatioPercent, float64(100))
	assert.Less(t, stats.MemoryUsageBytes, int64(len(value)))
}

func TestCache_SmallValueNotCompressed(t *testing.T) {
	c := newTestCache(t, 1024, true)

	c.Set("tiny", "abc")

	stats := c.Stats()
	assert.Equal(t, float64(0), stats.CompressionRatioPercent)
}

func TestCache_SerializationFailureStillStored(t *testing.T) {
	c := newTestCache(t, 4096, false)

	// Channels cannot be serialized to JSON; the value is stored live with
	// a default size estimate instead of being rejected.
	ch := make(chan int)
	c.Set("unserializable", ch)

	var got chan int
	found, err := c.Get("unserializable", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1024), c.Stats().MemoryUsageBytes)
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t, 1024, false)

	c.SetBytes("k", bytes.Repeat([]byte("a"), 50))
	require.Equal(t, int64(50), c.Stats().MemoryUsageBytes)

	c.Delete("k")
	assert.Equal(t, int64(0), c.Stats().MemoryUsageBytes)
	assert.Equal(t, 0, c.Len())

	// Deleting again is a no-op; usage was decremented exactly once.
	c.Delete("k")
	assert.Equal(t, int64(0), c.Stats().MemoryUsageBytes)
}

func TestCache_ClearMarksEviction(t *testing.T) {
	c := newTestCache(t, 1024, false)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.MemoryUsageBytes)
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)

	// The tier remains usable after a clear.
	c.Set("c", 3)
	var got int
	found, err := c.Get("c", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got)
}

func TestCache_ResponseTimeWindow(t *testing.T) {
	c := newTestCache(t, 1024*1024, false)

	c.Set("k", "v")
	var got string
	for i := 0; i < 150; i++ {
		_, err := c.Get("k", &got)
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.AvgResponseTimeMs, float64(0))
	assert.Equal(t, int64(150), stats.Hits)
}

func TestCache_PeekDoesNotTouch(t *testing.T) {
	c := newTestCache(t, 1024, false)

	c.SetBytes("k", []byte(`"v"`))

	before := c.Stats().Hits
	payload, ok := c.Peek("k")
	require.True(t, ok)
	assert.Equal(t, []byte(`"v"`), payload)
	assert.Equal(t, before, c.Stats().Hits)
}
