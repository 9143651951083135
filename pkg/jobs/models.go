package jobs

import (
	"time"

	"gorm.io/datatypes"
)

// JobState represents the lifecycle state of a generation job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// Trigger records what scheduled a job.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerAPI     Trigger = "api"
)

// DefaultTemplate is the template used when a caller names none.
const DefaultTemplate = "default"

// GenerationJob is the GORM model for one scheduled document generation.
type GenerationJob struct {
	ID             string         `gorm:"primaryKey;column:id;type:varchar(36)"`
	OwnerID        string         `gorm:"column:owner_id;type:varchar(128);index:idx_gen_owner_state,priority:1;not null"`
	BoardID        string         `gorm:"column:board_id;type:varchar(64);index:idx_gen_board;not null"`
	TemplateName   string         `gorm:"column:template_name;type:varchar(128);not null"`
	Trigger        Trigger        `gorm:"column:trigger_source;type:varchar(16);not null"`
	RequestedAt    time.Time      `gorm:"column:requested_at;not null"`
	State          JobState       `gorm:"column:state;type:varchar(16);index:idx_gen_owner_state,priority:2;index:idx_gen_state;not null;default:queued"`
	Message        string         `gorm:"column:message"`
	StartedAt      *time.Time     `gorm:"column:started_at"`
	FinishedAt     *time.Time     `gorm:"column:finished_at"`
	AttemptCount   int            `gorm:"column:attempt_count;default:0"`
	LastError      string         `gorm:"column:last_error;type:text"`
	IdempotencyKey string         `gorm:"column:idempotency_key;type:varchar(255);uniqueIndex:idx_gen_idemp_key"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	DurationMs     int64          `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (GenerationJob) TableName() string { return "generation_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *GenerationJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed:
		return true
	}
	return false
}

// IdempotencyKeyFor coalesces jobs for the same artifact while one is pending.
func IdempotencyKeyFor(ownerID, boardID, templateName string) string {
	return ownerID + ":" + boardID + ":" + templateName
}
