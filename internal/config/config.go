package config

import (
	"context"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// DefaultBypassToken is the reserved credential trusted internal callers use
// to read any case. It is not a secret and must never be accepted from an
// untrusted channel.
const DefaultBypassToken = "squavy"

// Config holds all configuration for the case recorder.
type Config struct {
	// Datastore backend type: "mongo" or "memory".
	DatastoreType string

	// Database
	DBURL  string
	DBName string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "none", "local" or "redis".
	CacheType string
	RedisURL  string
	CacheTTL  time.Duration
	// CacheMaxCost bounds the local cache, in bytes of decoded records.
	CacheMaxCost int64

	// RecordFile is the local recording file opened by the sqlite backend.
	RecordFile string

	// QueryTimeout bounds every local-file query. Zero disables the bound.
	QueryTimeout time.Duration

	// Identifier allocation.
	MaxIDAttempts int
	TokenLength   int

	// BypassToken grants read access to any case. Internal callers only.
	BypassToken string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics.
	MetricsLabels string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "mongo",
		DBURL:                   "mongodb://localhost:27017",
		DBName:                  "openmdao_blue",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheTTL:                10 * time.Minute,
		CacheMaxCost:            64 * 1024 * 1024,
		QueryTimeout:            30 * time.Second,
		MaxIDAttempts:           1000,
		TokenLength:             10,
		BypassToken:             DefaultBypassToken,
		MetricsLabels:           "service=case-recorder",
	}
}

// ResolvedBypassToken returns the configured bypass token or the default.
func (c *Config) ResolvedBypassToken() string {
	if c == nil {
		return DefaultBypassToken
	}
	if tok := strings.TrimSpace(c.BypassToken); tok != "" {
		return tok
	}
	return DefaultBypassToken
}

// ResolvedMaxIDAttempts returns the allocation bound, never below one.
func (c *Config) ResolvedMaxIDAttempts() int {
	if c == nil || c.MaxIDAttempts <= 0 {
		return 1000
	}
	return c.MaxIDAttempts
}
