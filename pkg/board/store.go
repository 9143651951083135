// Package board persists the board to owner mapping that routes inbound
// webhook events to accounts.
package board

import (
	"context"
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// Store provides the Mapping Store operations over a gorm database.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the board_mappings table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&BoardMapping{})
}

// Upsert inserts the mapping or overwrites owner and display metadata when the
// board is already mapped.
func (s *Store) Upsert(ctx context.Context, m *BoardMapping) error {
	if m.BoardID == "" || m.OwnerID == "" {
		return apperr.Validationf("board.upsert", "board id and owner id are required")
	}
	m.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "board_name", "board_desc", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return apperr.Storage("board.upsert", err)
	}
	return nil
}

// Get returns the mapping for boardID or an apperr.ErrNotFound error.
func (s *Store) Get(ctx context.Context, boardID string) (*BoardMapping, error) {
	var m BoardMapping
	if err := s.db.WithContext(ctx).First(&m, "board_id = ?", boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("board.get", "board %s is not mapped", boardID)
		}
		return nil, apperr.Storage("board.get", err)
	}
	return &m, nil
}

// LookupOwner returns the owner of boardID.
func (s *Store) LookupOwner(ctx context.Context, boardID string) (string, error) {
	m, err := s.Get(ctx, boardID)
	if err != nil {
		return "", err
	}
	return m.OwnerID, nil
}

// ListForBoard returns every owner currently mapped to boardID. An unmapped
// board yields an empty set, not an error.
func (s *Store) ListForBoard(ctx context.Context, boardID string) (mapset.Set[string], error) {
	var owners []string
	err := s.db.WithContext(ctx).Model(&BoardMapping{}).
		Where("board_id = ?", boardID).
		Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, apperr.Storage("board.list_for_board", err)
	}
	return mapset.NewSet(owners...), nil
}

// ListForOwner returns the boards mapped to ownerID ordered by name.
func (s *Store) ListForOwner(ctx context.Context, ownerID string) ([]BoardMapping, error) {
	var out []BoardMapping
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("board_name ASC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Storage("board.list_for_owner", err)
	}
	return out, nil
}
