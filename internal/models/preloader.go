package models

import "context"

// Preloader recomputes a critical key's value from its source of truth when
// the warm cycle finds it absent from every tier. Implementations are
// expected to write the recomputed value back through the cache manager.
type Preloader interface {
	Preload(ctx context.Context, key string) error
}
