package config

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STRATA_REDIS_ADDR", "")
	t.Setenv("STRATA_DISABLE_REMOTE", "")
	t.Setenv("STRATA_TEST_MODE", "")
	t.Setenv("STRATA_ENABLE_COMPRESSION", "")
	t.Setenv("CI", "")
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New(func(c *Config) error {
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100*1024*1024), cfg.MaxMemoryBytes)
	assert.Equal(t, 1024, cfg.CompressionThresholdBytes)
	assert.True(t, cfg.EnableCompression)
	assert.Equal(t, 30*time.Minute, cfg.TTLDefaults.Medium)
	assert.Equal(t, 24*time.Hour, cfg.TTLDefaults.Day)
	assert.Equal(t, 30*time.Minute, cfg.WarmInterval)
	assert.False(t, cfg.RemoteConfigured())
}

func TestNew_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATA_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("STRATA_ENABLE_COMPRESSION", "false")

	cfg, err := New(func(c *Config) error {
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.False(t, cfg.EnableCompression)
	assert.True(t, cfg.RemoteConfigured())
}

func TestNew_TestModeForcesMemoryOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATA_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("STRATA_TEST_MODE", "true")

	cfg, err := New(func(c *Config) error {
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	assert.True(t, cfg.TestMode)
	assert.False(t, cfg.RemoteConfigured())
}

func TestNew_CIForcesMemoryOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("CI", "true")

	cfg, err := New(func(c *Config) error {
		c.Redis = &redis.Options{Addr: "localhost:6379"}
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	assert.False(t, cfg.RemoteConfigured())
}

func TestNew_DisableRemote(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRATA_DISABLE_REMOTE", "1")

	cfg, err := New(func(c *Config) error {
		c.Redis = &redis.Options{Addr: "localhost:6379"}
		c.Logger = zap.NewNop()
		return nil
	})
	require.NoError(t, err)

	assert.False(t, cfg.RemoteConfigured())
}

func TestNew_RejectsZeroMemoryBudget(t *testing.T) {
	clearEnv(t)

	_, err := New(func(c *Config) error {
		c.MaxMemoryBytes = 0
		c.Logger = zap.NewNop()
		return nil
	})
	assert.ErrorIs(t, err, ErrMaxMemoryZero)
}
