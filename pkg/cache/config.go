package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the in-process caches.
type CacheConfig struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and artifacts are always read from the database.
	Enabled bool

	// BoardsTTL bounds how long a board listing response is served without
	// asking the provider again.
	BoardsTTL time.Duration

	// ArtifactTTL is the TTL for generated artifacts held in memory.
	ArtifactTTL time.Duration

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:     true,
		BoardsTTL:   30 * time.Second,
		ArtifactTTL: 10 * time.Minute,
		MaxSize:     1000,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - BOARDDOCS_CACHE_ENABLED: "true" or "false" (default: "true")
//   - BOARDDOCS_CACHE_BOARDS_TTL: duration in seconds (default: 30)
//   - BOARDDOCS_CACHE_ARTIFACT_TTL: duration in seconds (default: 600)
//   - BOARDDOCS_CACHE_MAX_SIZE: max entries per cache (default: 1000)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("BOARDDOCS_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("BOARDDOCS_CACHE_BOARDS_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.BoardsTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("BOARDDOCS_CACHE_ARTIFACT_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.ArtifactTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("BOARDDOCS_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
