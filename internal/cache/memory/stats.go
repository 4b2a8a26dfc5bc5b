package memory

// Stats is a point-in-time snapshot of the tier's metrics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`

	MemoryUsageBytes int64   `json:"memory_usage_bytes"`
	MemoryUsageMB    float64 `json:"memory_usage_mb"`

	// HitRate is hits/(hits+misses), 0 before any request.
	HitRate float64 `json:"hit_rate"`

	// CompressionRatioPercent is stored/raw * 100 over compressed writes,
	// 0 when nothing has been compressed.
	CompressionRatioPercent float64 `json:"compression_ratio_percent"`

	// AvgResponseTimeMs is averaged over a trailing window of at most the
	// last 100 operations.
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// Stats returns a snapshot of the tier's metrics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:             c.hits,
		Misses:           c.misses,
		Evictions:        c.evictions,
		Entries:          len(c.entries),
		MemoryUsageBytes: c.usage,
		MemoryUsageMB:    float64(c.usage) / (1024 * 1024),
	}

	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	if c.rawBytes > 0 {
		s.CompressionRatioPercent = float64(c.storedBytes) / float64(c.rawBytes) * 100
	}
	if c.respCount > 0 {
		var sum float64
		for i := 0; i < c.respCount; i++ {
			sum += c.respTimes[i]
		}
		s.AvgResponseTimeMs = sum / float64(c.respCount)
	}

	return s
}
