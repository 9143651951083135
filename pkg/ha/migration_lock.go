package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLockName is the lock taken around schema migrations.
const MigrationLockName = "boarddocs-migration"

// MigrationLocker serializes a critical section across replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the lock. It blocks until the lock
	// is acquired and releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker appropriate for the database
// dialect. PostgreSQL uses session advisory locks; other databases use a
// lock table. A nil db yields a lock that just runs fn.
func NewMigrationLocker(db *gorm.DB, name string) MigrationLocker {
	if db == nil {
		return noopMigrationLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(name))),
		}
	}
	// Create the lock table up front so concurrent first callers never see
	// "no such table".
	_ = db.AutoMigrate(&lockRecord{})
	return &tableLock{db: db, name: name, retry: time.Second, attempts: 30, staleAfter: 5 * time.Minute}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock holds one pooled connection for the lock's lifetime since
// advisory locks belong to the session that took them.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
			return fmt.Errorf("failed to acquire advisory lock %d: %w", l.lockID, err)
		}
		defer func() {
			_ = conn.WithContext(context.Background()).Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
		}()
		return fn()
	})
}

type lockRecord struct {
	ID       string    `gorm:"primaryKey;column:id;type:varchar(128)"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (lockRecord) TableName() string { return "boarddocs_locks" }

// tableLock relies on the primary key: only one replica can insert the row.
// Rows older than staleAfter are assumed to belong to a crashed holder.
type tableLock struct {
	db         *gorm.DB
	name       string
	retry      time.Duration
	attempts   int
	staleAfter time.Duration
}

func (l *tableLock) WithLock(ctx context.Context, fn func() error) error {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}

	var lastErr error
	acquired := false
	for i := 0; i < l.attempts; i++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", l.name, time.Now().Add(-l.staleAfter)).
			Delete(&lockRecord{})

		lastErr = l.db.WithContext(ctx).Create(&lockRecord{ID: l.name, LockedAt: time.Now(), LockedBy: holder}).Error
		if lastErr == nil {
			acquired = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock %q after %d attempts: %w", l.name, l.attempts, lastErr)
	}

	defer l.db.Where("id = ?", l.name).Delete(&lockRecord{})

	return fn()
}
