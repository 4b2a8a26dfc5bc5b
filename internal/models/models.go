package models

import (
	"errors"
)

// TierStatus describes the coarse availability of a backing tier as reported
// by the manager's metrics snapshot.
type TierStatus string

const (
	StatusConnected             TierStatus = "connected"
	StatusDisabled              TierStatus = "disabled"
	StatusServerSideUnavailable TierStatus = "server-side-unavailable"
)

var (
	// ErrKeyNotFound is returned when a key is absent from a tier.
	ErrKeyNotFound = errors.New("key not found in cache")

	// ErrTierUnavailable is returned when a tier cannot serve requests in the
	// current execution context. Always recoverable: the manager treats the
	// tier as absent and falls back to the remaining tiers.
	ErrTierUnavailable = errors.New("cache tier unavailable")

	// ErrSetFailed is returned when a tier rejects a write.
	ErrSetFailed = errors.New("failed to set cache entry")
)
