package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	pendingStates       = []JobState{JobStateQueued, JobStateRunning}
	forUpdateSkipLocked = clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
)

// JobStore provides database operations for generation jobs.
type JobStore struct {
	db            *gorm.DB
	notifyChannel string
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// EnableNotify makes Enqueue publish the job ID on a PostgreSQL NOTIFY
// channel so workers in other replicas wake up without waiting for a poll.
// It has no effect on other dialects.
func (s *JobStore) EnableNotify(channel string) {
	if s.db.Dialector.Name() == "postgres" {
		s.notifyChannel = channel
	}
}

// AutoMigrate creates or updates the generation_jobs table.
func (s *JobStore) AutoMigrate() error {
	return s.db.AutoMigrate(&GenerationJob{})
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	OwnerID string
	BoardID string
	State   string
}

// Enqueue creates a new queued job. If idempotencyKey is non-empty and a
// pending job with the same key exists, the existing job is returned instead
// of creating a duplicate. Safe for concurrent use.
func (s *JobStore) Enqueue(job *GenerationJob) (*GenerationJob, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.TemplateName == "" {
		job.TemplateName = DefaultTemplate
	}
	if job.State == "" {
		job.State = JobStateQueued
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}

	if job.IdempotencyKey == "" {
		if err := s.db.Create(job).Error; err != nil {
			return nil, fmt.Errorf("enqueue job: %w", err)
		}
		s.publish(job.ID)
		return job, nil
	}

	var result *GenerationJob
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing GenerationJob
		err := tx.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey, pendingStates).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Finished jobs keep a key unique to themselves so the index admits
		// the new one.
		if err := tx.Model(&GenerationJob{}).
			Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
				[]JobState{JobStateSucceeded, JobStateFailed}).
			Update("idempotency_key", gorm.Expr("id")).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return err
		}
		result = job
		return nil
	})
	if err != nil {
		// Another writer may have inserted the same key between our check and
		// create; the transaction is gone, so look it up on a fresh statement.
		var raced GenerationJob
		if lookupErr := s.db.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey, pendingStates).
			First(&raced).Error; lookupErr == nil {
			return &raced, nil
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	if result == job {
		s.publish(job.ID)
	}
	return result, nil
}

func (s *JobStore) publish(jobID string) {
	if s.notifyChannel == "" {
		return
	}
	// Best effort; pollers pick the job up regardless.
	_ = s.db.Exec("SELECT pg_notify(?, ?)", s.notifyChannel, jobID).Error
}

// Claim atomically picks the oldest queued job and transitions it to running.
// Uses FOR UPDATE SKIP LOCKED on PostgreSQL. Returns nil if no jobs are
// available.
func (s *JobStore) Claim(maxRetries int) (*GenerationJob, error) {
	var job GenerationJob

	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
			Order("requested_at ASC").
			Limit(1)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(forUpdateSkipLocked)
		}
		if err := q.Find(&job).Error; err != nil {
			return err
		}
		if job.ID == "" {
			return nil
		}

		now := time.Now()
		res := tx.Model(&GenerationJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to another worker.
			job = GenerationJob{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Complete marks a job as succeeded.
func (s *JobStore) Complete(jobID string, durationMs int64, message string) error {
	now := time.Now()
	result := s.db.Model(&GenerationJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":       JobStateSucceeded,
		"finished_at": now,
		"duration_ms": durationMs,
		"message":     message,
	})
	if result.Error != nil {
		return fmt.Errorf("complete job: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. The job is re-queued while attempts remain
// and marked failed otherwise.
func (s *JobStore) Fail(jobID string, errMsg string, maxRetries int) error {
	now := time.Now()

	var job GenerationJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": now,
	}
	if job.AttemptCount < maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Max retries exceeded: " + errMsg
	}

	if err := s.db.Model(&GenerationJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID. Returns nil, nil if it does not exist.
func (s *JobStore) Get(jobID string) (*GenerationJob, error) {
	var job GenerationJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching filter, newest first, with a cursor for the next
// page.
func (s *JobStore) List(filter JobListFilter, pageSize int, pageToken string) ([]GenerationJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&GenerationJob{})
		if filter.OwnerID != "" {
			q = q.Where("owner_id = ?", filter.OwnerID)
		}
		if filter.BoardID != "" {
			q = q.Where("board_id = ?", filter.BoardID)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	query := buildQuery(s.db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []GenerationJob
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// CleanupStuckJobs moves jobs that have been running longer than claimTimeout
// back to queued. A crashed replica leaves such jobs behind.
func (s *JobStore) CleanupStuckJobs(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	result := s.db.Model(&GenerationJob{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "Timed out (stuck job recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs finished before cutoff.
func (s *JobStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("state IN ? AND finished_at < ?",
		[]JobState{JobStateSucceeded, JobStateFailed}, cutoff).
		Delete(&GenerationJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
