package docs

import (
	"time"

	"gorm.io/datatypes"

	"github.com/autodocgen/boarddocs/pkg/generator"
	"github.com/autodocgen/boarddocs/pkg/jobs"
)

// Key identifies one cached artifact.
type Key struct {
	OwnerID      string
	ProjectID    string
	TemplateName string
}

// Normalize fills the default template.
func (k Key) Normalize() Key {
	if k.TemplateName == "" {
		k.TemplateName = jobs.DefaultTemplate
	}
	return k
}

func (k Key) String() string {
	return k.OwnerID + "|" + k.ProjectID + "|" + k.TemplateName
}

// Artifact is a generated document with its diagrams. Rows are immutable
// once written.
type Artifact struct {
	ID           string                                           `gorm:"primaryKey;column:id;type:varchar(36)"`
	OwnerID      string                                           `gorm:"column:owner_id;type:varchar(128);not null;uniqueIndex:uniq_artifact_key,priority:1"`
	ProjectID    string                                           `gorm:"column:project_id;type:varchar(64);not null;uniqueIndex:uniq_artifact_key,priority:2;index:idx_artifact_project"`
	TemplateName string                                           `gorm:"column:template_name;type:varchar(128);not null;uniqueIndex:uniq_artifact_key,priority:3"`
	DocumentText string                                           `gorm:"column:document_text;type:text"`
	Diagrams     datatypes.JSONType[map[string]generator.Diagram] `gorm:"column:diagrams"`
	BoardName    string                                           `gorm:"column:board_name"`
	CreatedAt    time.Time                                        `gorm:"column:created_at;index"`
}

// TableName returns the GORM table name.
func (Artifact) TableName() string { return "generated_artifacts" }

// Key returns the artifact's compound key.
func (a *Artifact) Key() Key {
	return Key{OwnerID: a.OwnerID, ProjectID: a.ProjectID, TemplateName: a.TemplateName}
}
