package cache

import (
	"net/http"
)

// ResponseCache caches board listing responses per owner. Any event that can
// change what an owner sees (a new token, a new artifact, a webhook for one
// of their boards) must call InvalidateOwner.
type ResponseCache struct {
	boards *LRU[[]byte]
}

// NewResponseCache creates a ResponseCache from the given configuration.
// If cfg is nil or disabled, it returns nil. A nil *ResponseCache is safe to
// use and caches nothing.
func NewResponseCache(cfg *CacheConfig) *ResponseCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &ResponseCache{
		boards: NewLRU[[]byte](cfg.MaxSize, cfg.BoardsTTL),
	}
}

// InvalidateOwner drops every cached response for ownerID.
func (rc *ResponseCache) InvalidateOwner(ownerID string) {
	if rc == nil {
		return
	}
	rc.boards.Invalidate(ownerID)
}

// InvalidateAll clears every cached response.
func (rc *ResponseCache) InvalidateAll() {
	if rc == nil {
		return
	}
	rc.boards.InvalidateAll()
}

// BoardsMiddleware returns HTTP middleware caching board listings keyed by
// the user_id query parameter. Without a cache it passes requests through.
func (rc *ResponseCache) BoardsMiddleware() func(http.Handler) http.Handler {
	if rc == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return CacheMiddleware(rc.boards, OwnerKey)
}

// OwnerKey keys a request by its user_id query parameter.
func OwnerKey(r *http.Request) string {
	return r.URL.Query().Get("user_id")
}
