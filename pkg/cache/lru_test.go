package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"SetAndGet", testSetAndGet},
		{"GetMiss", testGetMiss},
		{"GetExpired", testGetExpired},
		{"SetOverMaxSizeEvictsOldest", testSetOverMaxSizeEvictsOldest},
		{"InvalidateRemovesEntry", testInvalidateRemovesEntry},
		{"InvalidateAllClearsCache", testInvalidateAllClearsCache},
		{"SetUpdatesExisting", testSetUpdatesExisting},
		{"ConcurrentAccess", testConcurrentAccess},
		{"SizeReflectsEntryCount", testSizeReflectsEntryCount},
		{"GetRefreshesRecency", testGetRefreshesRecency},
		{"InvalidateFuncRemovesMatches", testInvalidateFuncRemovesMatches},
		{"GenericValues", testGenericValues},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testSetAndGet(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)
	c.Set("key1", []byte("value1"))

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if string(got) != "value1" {
		t.Fatalf("expected %q, got %q", "value1", string(got))
	}
}

func testGetMiss(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)

	got, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss, got hit")
	}
	if got != nil {
		t.Fatalf("expected nil value on miss, got %q", string(got))
	}
}

func testGetExpired(t *testing.T) {
	c := NewLRU[[]byte](10, 50*time.Millisecond)
	c.Set("key1", []byte("value1"))

	// Verify it's there initially.
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	// Wait for TTL to expire.
	time.Sleep(100 * time.Millisecond)

	got, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache miss after expiry, got hit")
	}
	if got != nil {
		t.Fatalf("expected nil value after expiry, got %q", string(got))
	}

	// Expired entry should be lazily removed.
	if c.Size() != 0 {
		t.Fatalf("expected size 0 after expired get, got %d", c.Size())
	}
}

func testSetOverMaxSizeEvictsOldest(t *testing.T) {
	c := NewLRU[[]byte](3, 5*time.Second)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))

	if c.Size() != 3 {
		t.Fatalf("expected size 3, got %d", c.Size())
	}

	// Adding a 4th entry should evict "a" (least recently used).
	c.Set("d", []byte("4"))

	if c.Size() != 3 {
		t.Fatalf("expected size 3 after eviction, got %d", c.Size())
	}

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected 'a' to be evicted")
	}

	// "b", "c", "d" should still be present.
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("expected %q to still be in cache", key)
		}
	}
}

func testInvalidateRemovesEntry(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)
	c.Set("key1", []byte("value1"))
	c.Set("key2", []byte("value2"))

	c.Invalidate("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected 'key1' to be invalidated")
	}

	// key2 should still be present.
	if _, ok := c.Get("key2"); !ok {
		t.Fatal("expected 'key2' to still be in cache")
	}
}

func testInvalidateAllClearsCache(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)
	c.Set("key1", []byte("value1"))
	c.Set("key2", []byte("value2"))
	c.Set("key3", []byte("value3"))

	c.InvalidateAll()

	if c.Size() != 0 {
		t.Fatalf("expected size 0 after InvalidateAll, got %d", c.Size())
	}

	for _, key := range []string{"key1", "key2", "key3"} {
		if _, ok := c.Get(key); ok {
			t.Fatalf("expected %q to be cleared", key)
		}
	}
}

func testSetUpdatesExisting(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)
	c.Set("key1", []byte("old"))
	c.Set("key1", []byte("new"))

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "new" {
		t.Fatalf("expected %q, got %q", "new", string(got))
	}

	// Size should not increase on update.
	if c.Size() != 1 {
		t.Fatalf("expected size 1 after update, got %d", c.Size())
	}
}

func testConcurrentAccess(t *testing.T) {
	c := NewLRU[[]byte](100, 5*time.Second)

	var wg sync.WaitGroup
	goroutines := 50
	ops := 100

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < ops; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				c.Set(key, []byte(fmt.Sprintf("value-%d-%d", id, j)))
				c.Get(key)
				if j%10 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}

	wg.Wait()

	// No panics or data races means success. Size should be <= maxSize.
	if c.Size() > 100 {
		t.Fatalf("expected size <= 100, got %d", c.Size())
	}
}

func testSizeReflectsEntryCount(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)

	if c.Size() != 0 {
		t.Fatalf("expected initial size 0, got %d", c.Size())
	}

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}

	c.Invalidate("a")
	if c.Size() != 1 {
		t.Fatalf("expected size 1 after invalidation, got %d", c.Size())
	}
}

func testGetRefreshesRecency(t *testing.T) {
	c := NewLRU[[]byte](2, 5*time.Second)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))

	// Touching "a" makes "b" the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' to be present")
	}
	c.Set("c", []byte("3"))

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected 'a' to survive eviction")
	}
}

func testInvalidateFuncRemovesMatches(t *testing.T) {
	c := NewLRU[[]byte](10, 5*time.Second)
	c.Set("u1|b1|default", []byte("x"))
	c.Set("u1|b2|default", []byte("y"))
	c.Set("u2|b1|default", []byte("z"))

	n := c.InvalidateFunc(func(k string) bool { return k[:2] == "u1" })
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
	if _, ok := c.Get("u2|b1|default"); !ok {
		t.Fatal("expected u2 entry to remain")
	}
}

func testGenericValues(t *testing.T) {
	type artifact struct{ doc string }
	c := NewLRU[*artifact](10, 5*time.Second)
	c.Set("k", &artifact{doc: "## Intro"})

	got, ok := c.Get("k")
	if !ok || got.doc != "## Intro" {
		t.Fatalf("expected stored artifact, got %+v (hit=%v)", got, ok)
	}

	missing, ok := c.Get("other")
	if ok || missing != nil {
		t.Fatal("expected nil pointer on miss")
	}
}
