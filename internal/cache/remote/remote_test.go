package remote

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goflare.io/strata/internal/config"
	"goflare.io/strata/internal/models"
)

// setupAdapter connects to a local Redis and skips the test when none is
// reachable, so unit runs stay green without infrastructure.
func setupAdapter(t *testing.T) *Adapter {
	t.Helper()

	cfg, err := config.New(func(c *config.Config) error {
		c.Redis = &redis.Options{Addr: "localhost:6379", DB: 15}
		c.DisableRemote = false
		c.TestMode = false
		c.EnableMetrics = false
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	a, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	if err := a.Connect(ctx); err != nil {
		t.Skipf("redis not available for testing: %v", err)
	}

	require.NoError(t, a.client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = a.client.FlushDB(context.Background()).Err()
		_ = a.Close()
	})

	return a
}

func newUnconfiguredAdapter(t *testing.T) *Adapter {
	t.Helper()

	cfg, err := config.New(func(c *config.Config) error {
		c.TestMode = true
		c.EnableMetrics = false
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestAdapter_UnconfiguredIsPermanentlyUnavailable(t *testing.T) {
	a := newUnconfiguredAdapter(t)
	ctx := context.Background()

	assert.ErrorIs(t, a.Connect(ctx), models.ErrTierUnavailable)
	assert.False(t, a.Available())

	_, err := a.Get(ctx, "k")
	assert.ErrorIs(t, err, models.ErrTierUnavailable)
	assert.ErrorIs(t, a.SetWithTTL(ctx, "k", []byte("v"), time.Minute), models.ErrTierUnavailable)
	assert.ErrorIs(t, a.Delete(ctx, "k"), models.ErrTierUnavailable)
	_, err = a.Keys(ctx, "*")
	assert.ErrorIs(t, err, models.ErrTierUnavailable)
	assert.ErrorIs(t, a.DeleteMany(ctx, []string{"k"}), models.ErrTierUnavailable)

	// Empty batch deletes are a no-op even when unavailable.
	assert.NoError(t, a.DeleteMany(ctx, nil))
	assert.NoError(t, a.Close())
}

func TestAdapter_SetGetDelete(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.SetWithTTL(ctx, "data:flavors:vanilla", []byte(`"v"`), time.Minute))

	got, err := a.Get(ctx, "data:flavors:vanilla")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v"`), got)

	require.NoError(t, a.Delete(ctx, "data:flavors:vanilla"))

	_, err = a.Get(ctx, "data:flavors:vanilla")
	assert.ErrorIs(t, err, models.ErrKeyNotFound)
}

func TestAdapter_KeysAndDeleteMany(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.SetWithTTL(ctx, "data:flavors:a", []byte("1"), time.Minute))
	require.NoError(t, a.SetWithTTL(ctx, "data:flavors:b", []byte("2"), time.Minute))
	require.NoError(t, a.SetWithTTL(ctx, "data:other:c", []byte("3"), time.Minute))

	keys, err := a.Keys(ctx, "data:flavors:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data:flavors:a", "data:flavors:b"}, keys)

	require.NoError(t, a.DeleteMany(ctx, keys))

	keys, err = a.Keys(ctx, "data:flavors:*")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Unmatched keys are untouched.
	got, err := a.Get(ctx, "data:other:c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}

func TestAdapter_TTLIsApplied(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.SetWithTTL(ctx, "ephemeral", []byte("v"), 100*time.Millisecond))

	time.Sleep(200 * time.Millisecond)

	_, err := a.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, models.ErrKeyNotFound)
}
