package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("CASE_RECORDER_QUERY_TIMEOUT", "PT2M")
	t.Setenv("CASE_RECORDER_CACHE_TTL", "90s")
	t.Setenv("CASE_RECORDER_CACHE_MAX_COST", "12M")
	t.Setenv("CASE_RECORDER_MAX_ID_ATTEMPTS", "50")
	t.Setenv("CASE_RECORDER_DB_MIGRATE_AT_START", "false")
	t.Setenv("CASE_RECORDER_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("CASE_RECORDER_DB_MAX_OPEN_CONNS", "8")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, 2*time.Minute, cfg.QueryTimeout)
	require.Equal(t, 90*time.Second, cfg.CacheTTL)
	require.Equal(t, int64(12*1024*1024), cfg.CacheMaxCost)
	require.Equal(t, 50, cfg.MaxIDAttempts)
	require.False(t, cfg.DatastoreMigrateAtStart)
	require.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	require.Equal(t, 8, cfg.DBMaxOpenConns)
}

func TestApplyEnv_RejectsBadDuration(t *testing.T) {
	t.Setenv("CASE_RECORDER_QUERY_TIMEOUT", "soon")
	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}

func TestResolvedBypassToken(t *testing.T) {
	var nilCfg *Config
	require.Equal(t, DefaultBypassToken, nilCfg.ResolvedBypassToken())

	cfg := Config{BypassToken: " internal "}
	require.Equal(t, "internal", cfg.ResolvedBypassToken())
}

func TestResolvedMaxIDAttempts(t *testing.T) {
	require.Equal(t, 1000, (&Config{}).ResolvedMaxIDAttempts())
	require.Equal(t, 3, (&Config{MaxIDAttempts: 3}).ResolvedMaxIDAttempts())
}

func TestWithContext(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
