package docs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// Locker provides cross-process mutual exclusion per artifact key. Within one
// process singleflight already coalesces callers; a Locker extends that to
// every replica sharing the database.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done. The
	// returned function releases it.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NoopLocker is used when only one replica runs.
type NoopLocker struct{}

// Acquire implements Locker.
func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX. The lock expires after ttl so
// a crashed holder cannot block a key forever.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a RedisLocker. ttl should exceed the generation
// timeout.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{
		client: client,
		prefix: "boarddocs:lock:",
		ttl:    ttl,
		retry:  250 * time.Millisecond,
	}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "docs.lock"
	k := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, apperr.Transient(op, fmt.Errorf("acquire %s: %w", k, err))
		}
		if ok {
			return func() {
				// The caller's ctx may already be done.
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.client, []string{k}, token).Err()
			}, nil
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, apperr.Transient(op, fmt.Errorf("waiting for %s: %w", k, ctx.Err()))
		case <-t.C:
		}
	}
}
