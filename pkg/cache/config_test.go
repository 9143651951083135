package cache

import (
	"testing"
	"time"
)

func TestCacheConfigFromEnv(t *testing.T) {
	t.Setenv("BOARDDOCS_CACHE_ENABLED", "false")
	t.Setenv("BOARDDOCS_CACHE_BOARDS_TTL", "5")
	t.Setenv("BOARDDOCS_CACHE_ARTIFACT_TTL", "nope")
	t.Setenv("BOARDDOCS_CACHE_MAX_SIZE", "42")

	cfg := CacheConfigFromEnv()
	if cfg.Enabled {
		t.Fatal("expected caching disabled")
	}
	if cfg.BoardsTTL != 5*time.Second {
		t.Fatalf("expected BoardsTTL 5s, got %v", cfg.BoardsTTL)
	}
	if cfg.ArtifactTTL != 10*time.Minute {
		t.Fatalf("expected default ArtifactTTL on bad input, got %v", cfg.ArtifactTTL)
	}
	if cfg.MaxSize != 42 {
		t.Fatalf("expected MaxSize 42, got %d", cfg.MaxSize)
	}
}
