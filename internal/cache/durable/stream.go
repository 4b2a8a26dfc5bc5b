package durable

import (
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"

	"goflare.io/strata/internal/models"
)

// StreamStore is the coarse byte-stream tier: raw payloads keyed by
// request-like identifiers, with no enforced size limit and no TTL of its
// own. Retention is left to the backing store's policy.
type StreamStore struct {
	fs     billy.Filesystem
	logger *zap.Logger
}

// NewStreamStore builds the byte-stream tier. fs may be nil.
func NewStreamStore(fs billy.Filesystem, logger *zap.Logger) *StreamStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamStore{fs: fs, logger: logger}
}

// Available reports whether the tier exists in this execution context.
func (s *StreamStore) Available() bool {
	return s.fs != nil
}

// Get returns the raw payload for a key, or false when absent.
func (s *StreamStore) Get(key string) ([]byte, bool) {
	if !s.Available() {
		return nil, false
	}

	data, err := util.ReadFile(s.fs, s.filename(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("stream tier read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set writes the raw payload. The ttl parameter is accepted for contract
// symmetry with the structured tier and ignored: this store has no expiry
// metadata of its own. A rejected write is reported as ErrSetFailed.
func (s *StreamStore) Set(key string, value []byte, _ ...time.Duration) error {
	if !s.Available() {
		return nil
	}
	if err := util.WriteFile(s.fs, s.filename(key), value, 0o644); err != nil {
		return fmt.Errorf("write stream record for key %s: %w: %w", key, models.ErrSetFailed, err)
	}
	return nil
}

// Clear drops every payload in the tier.
func (s *StreamStore) Clear() {
	if !s.Available() {
		return
	}
	removeAll(s.fs, s.logger)
}

func (s *StreamStore) filename(key string) string {
	return hashName(key) + ".bin"
}
