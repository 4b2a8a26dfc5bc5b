package models

import (
	"time"
)

// Entry represents a single cached value as stored by the in-process tier.
// Data holds the serialized representation, which may be compressed; when it
// is, Compressed is true and SizeBytes reflects the compressed payload.
type Entry struct {
	Data         []byte
	Expiration   time.Time
	HitCount     int64
	LastAccessed time.Time
	SizeBytes    int64
	Compressed   bool

	// Value holds the live value when serialization failed and Data is nil.
	// SizeBytes is then a fixed estimate rather than a measurement.
	Value any
}

// NewEntry creates an Entry for the given payload and expiration.
func NewEntry(data []byte, expiration time.Time, compressed bool) *Entry {
	return &Entry{
		Data:         data,
		Expiration:   expiration,
		LastAccessed: time.Now(),
		SizeBytes:    int64(len(data)),
		Compressed:   compressed,
	}
}

// IsExpired checks if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expiration)
}

// Touch increments the hit count and refreshes the last access time.
func (e *Entry) Touch() {
	e.HitCount++
	e.LastAccessed = time.Now()
}
