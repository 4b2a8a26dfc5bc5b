// Package durable implements the client-side persistent tiers on top of a
// billy filesystem. Both tiers are optional at runtime: constructed with a
// nil filesystem (the server-side execution context) they become no-ops that
// report absent on read and silently succeed on write.
package durable

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"goflare.io/strata/internal/models"
)

// envelope is the structured on-disk record: the serialized value plus its
// expiry, checked on read.
type envelope struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the structured per-key tier with explicit TTL metadata. Arbitrary
// value sizes are accepted; expired entries are removed lazily on the read
// that discovers them.
type Store struct {
	fs         billy.Filesystem
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewStore builds the structured tier. fs may be nil.
func NewStore(fs billy.Filesystem, defaultTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fs: fs, defaultTTL: defaultTTL, logger: logger}
}

// Available reports whether the tier exists in this execution context. The
// manager queries this once and skips the tier for its lifetime when false.
func (s *Store) Available() bool {
	return s.fs != nil
}

// Get returns the serialized value for a key, or false when absent, expired,
// or unavailable. Never returns an error to the caller path: a corrupted
// record is logged and treated as a miss.
func (s *Store) Get(key string) ([]byte, bool) {
	if !s.Available() {
		return nil, false
	}

	data, err := util.ReadFile(s.fs, s.filename(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("durable tier read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("durable tier record corrupted, discarding", zap.String("key", key), zap.Error(err))
		_ = s.fs.Remove(s.filename(key))
		return nil, false
	}

	if time.Now().After(env.ExpiresAt) {
		_ = s.fs.Remove(s.filename(key))
		return nil, false
	}

	return env.Value, true
}

// Set writes the serialized value with an expiry recorded alongside it. A
// rejected write is reported as ErrSetFailed; callers treat the tier as best
// effort and decide whether that matters.
func (s *Store) Set(key string, value []byte, ttl ...time.Duration) error {
	if !s.Available() {
		return nil
	}

	d := s.defaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}

	env := envelope{Key: key, Value: value, ExpiresAt: time.Now().Add(d)}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode durable record for key %s: %w", key, models.ErrSetFailed)
	}

	if err := util.WriteFile(s.fs, s.filename(key), data, 0o644); err != nil {
		return fmt.Errorf("write durable record for key %s: %w: %w", key, models.ErrSetFailed, err)
	}
	return nil
}

// Delete removes a key's record if present.
func (s *Store) Delete(key string) {
	if !s.Available() {
		return
	}
	if err := s.fs.Remove(s.filename(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("durable tier delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear drops every record in the tier.
func (s *Store) Clear() {
	if !s.Available() {
		return
	}
	removeAll(s.fs, s.logger)
}

// filename maps a cache key to a stable flat filename; keys carry characters
// (colons, globs, slashes) that are not filesystem safe.
func (s *Store) filename(key string) string {
	return hashName(key) + ".json"
}

func hashName(key string) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, key)
	return fmt.Sprintf("%016x", h.Sum64())
}

func removeAll(fs billy.Filesystem, logger *zap.Logger) {
	infos, err := fs.ReadDir(".")
	if err != nil {
		logger.Warn("durable tier list failed", zap.Error(err))
		return
	}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if err := fs.Remove(info.Name()); err != nil && !os.IsNotExist(err) {
			logger.Warn("durable tier remove failed", zap.String("file", info.Name()), zap.Error(err))
		}
	}
}
