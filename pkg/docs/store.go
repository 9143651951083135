package docs

import (
	"context"
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// Store persists artifacts.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the generated_artifacts table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Artifact{})
}

// Insert writes a, or returns the row already stored under the same key.
// The unique key index makes this safe across replicas: the loser of a race
// gets the winner's artifact back.
func (s *Store) Insert(ctx context.Context, a *Artifact) (*Artifact, error) {
	const op = "docs.insert"
	if a.OwnerID == "" || a.ProjectID == "" || a.TemplateName == "" {
		return nil, apperr.Validationf(op, "owner, project and template are required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "project_id"}, {Name: "template_name"}},
			DoNothing: true,
		}).
		Create(a)
	if res.Error != nil {
		return nil, apperr.Storage(op, res.Error)
	}
	if res.RowsAffected == 1 {
		return a, nil
	}
	return s.Get(ctx, a.Key())
}

// Get returns the artifact stored under key.
func (s *Store) Get(ctx context.Context, key Key) (*Artifact, error) {
	var a Artifact
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND project_id = ? AND template_name = ?", key.OwnerID, key.ProjectID, key.TemplateName).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("docs.get", "no artifact for %s", key)
	}
	if err != nil {
		return nil, apperr.Storage("docs.get", err)
	}
	return &a, nil
}

// ListForOwner returns every artifact of ownerID, newest first.
func (s *Store) ListForOwner(ctx context.Context, ownerID string) ([]Artifact, error) {
	var out []Artifact
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, apperr.Storage("docs.list_for_owner", err)
	}
	return out, nil
}

// ForBoard returns ownerID's artifacts for one board across templates,
// oldest first.
func (s *Store) ForBoard(ctx context.Context, ownerID, projectID string) ([]Artifact, error) {
	var out []Artifact
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND project_id = ?", ownerID, projectID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, apperr.Storage("docs.for_board", err)
	}
	return out, nil
}

// ProjectsWithDocs returns the board IDs ownerID has at least one artifact for.
func (s *Store) ProjectsWithDocs(ctx context.Context, ownerID string) (mapset.Set[string], error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Artifact{}).
		Where("owner_id = ?", ownerID).
		Distinct().
		Pluck("project_id", &ids).Error; err != nil {
		return nil, apperr.Storage("docs.projects_with_docs", err)
	}
	return mapset.NewThreadUnsafeSet(ids...), nil
}
