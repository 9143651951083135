// Package notify keeps the append-only log of board activity shown to users.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// MaxLimit caps how many notifications one read returns.
const MaxLimit = 100

// Notification records one board event for one owner.
type Notification struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	OwnerID    string    `gorm:"column:owner_id;type:varchar(128);index:idx_notif_owner_created,priority:1;not null" json:"user_id"`
	BoardID    string    `gorm:"column:board_id;type:varchar(64)" json:"board_id"`
	BoardName  string    `gorm:"column:board_name" json:"board_name,omitempty"`
	EventType  string    `gorm:"column:event_type;type:varchar(64)" json:"event_type"`
	CardName   string    `gorm:"column:card_name" json:"card_name,omitempty"`
	ListBefore string    `gorm:"column:list_before" json:"list_before,omitempty"`
	ListAfter  string    `gorm:"column:list_after" json:"list_after,omitempty"`
	ActorName  string    `gorm:"column:actor_name" json:"actor_name,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_notif_owner_created,priority:2;index" json:"timestamp"`
}

// TableName returns the GORM table name.
func (Notification) TableName() string { return "notifications" }

// Store persists notifications.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the notifications table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Notification{})
}

// Append records n.
func (s *Store) Append(ctx context.Context, n *Notification) error {
	if n.OwnerID == "" {
		return apperr.Validationf("notify.append", "owner is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.EventType == "" {
		n.EventType = "unknown"
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return apperr.Storage("notify.append", err)
	}
	return nil
}

// Restore inserts n unless a notification with the same ID exists, keeping
// its original timestamp. It reports whether a row was written.
func (s *Store) Restore(ctx context.Context, n *Notification) (bool, error) {
	if n.ID == "" || n.OwnerID == "" {
		return false, apperr.Validationf("notify.restore", "id and owner are required")
	}
	if n.EventType == "" {
		n.EventType = "unknown"
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(n)
	if res.Error != nil {
		return false, apperr.Storage("notify.restore", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListByOwner returns ownerID's notifications newest first. limit is clamped
// to (0, MaxLimit].
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	out := []Notification{}
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, apperr.Storage("notify.list", err)
	}
	return out, nil
}

// DeleteOlderThan removes notifications created before cutoff.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&Notification{})
	if res.Error != nil {
		return 0, apperr.Storage("notify.delete_older_than", res.Error)
	}
	return res.RowsAffected, nil
}
