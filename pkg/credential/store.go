// Package credential stores the provider token of each account.
package credential

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// Credential is one provider token per owner.
type Credential struct {
	OwnerID   string    `gorm:"primaryKey;column:owner_id;type:varchar(128)"`
	Token     string    `gorm:"column:token;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Credential) TableName() string { return "credentials" }

// Store provides the Token Store operations.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the credentials table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Credential{})
}

// Save stores token for ownerID, replacing any previous token.
func (s *Store) Save(ctx context.Context, ownerID, token string) error {
	if ownerID == "" || token == "" {
		return apperr.Validationf("credential.save", "owner id and token are required")
	}
	c := &Credential{OwnerID: ownerID, Token: token, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(c).Error
	if err != nil {
		return apperr.Storage("credential.save", err)
	}
	return nil
}

// Get returns the token of ownerID or an apperr.ErrNotFound error.
func (s *Store) Get(ctx context.Context, ownerID string) (string, error) {
	var c Credential
	if err := s.db.WithContext(ctx).First(&c, "owner_id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NotFound("credential.get", "no credential for owner %s", ownerID)
		}
		return "", apperr.Storage("credential.get", err)
	}
	return c.Token, nil
}

// ListAll returns every stored credential ordered by owner.
func (s *Store) ListAll(ctx context.Context) ([]Credential, error) {
	var out []Credential
	if err := s.db.WithContext(ctx).Order("owner_id ASC").Find(&out).Error; err != nil {
		return nil, apperr.Storage("credential.list_all", err)
	}
	return out, nil
}
