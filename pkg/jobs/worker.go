package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Executor runs one generation job. A returned error counts as a failed
// attempt.
type Executor interface {
	Execute(ctx context.Context, job *GenerationJob) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job *GenerationJob) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job *GenerationJob) error { return f(ctx, job) }

// Notifier wakes workers when jobs are enqueued elsewhere. Listen blocks
// until ctx is done.
type Notifier interface {
	Listen(ctx context.Context, wake func()) error
}

// WorkerPool processes queued generation jobs with a fixed number of
// goroutines.
type WorkerPool struct {
	store    *JobStore
	executor Executor
	cfg      *JobConfig
	logger   *slog.Logger
	notifier Notifier
	wake     chan struct{}
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, executor Executor, cfg *JobConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &WorkerPool{
		store:    store,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		wake:     make(chan struct{}, max(cfg.Concurrency, 1)),
	}
}

// SetNotifier attaches a cross-process wake-up source. Must be called before Run.
func (wp *WorkerPool) SetNotifier(n Notifier) {
	wp.notifier = n
}

// Wake nudges an idle worker to poll immediately. It never blocks.
func (wp *WorkerPool) Wake() {
	select {
	case wp.wake <- struct{}{}:
	default:
	}
}

// Run starts the worker pool. It spawns cfg.Concurrency goroutines and blocks
// until the context is cancelled, then waits for in-flight jobs to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("job worker pool disabled")
		return
	}

	wp.logger.Info("job worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	if wp.notifier != nil {
		wp.wg.Add(1)
		go func() {
			defer wp.wg.Done()
			if err := wp.notifier.Listen(ctx, wp.Wake); err != nil {
				wp.logger.Error("job notifier stopped, falling back to polling", "error", err)
			}
		}()
	}

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("job worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	wp.logger.Debug("worker started", "workerID", workerID)

	for {
		select {
		case <-ctx.Done():
			wp.logger.Debug("worker stopped", "workerID", workerID)
			return
		case <-ticker.C:
		case <-wp.wake:
		}
		// Drain the queue before going back to sleep.
		for ctx.Err() == nil && wp.processOne(ctx, workerID) {
		}
	}
}

// processOne claims and runs a single job. It reports whether a job was
// claimed.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) bool {
	job, err := wp.store.Claim(wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim job", "workerID", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	wp.logger.Info("processing job",
		"workerID", workerID,
		"jobID", job.ID,
		"ownerID", job.OwnerID,
		"boardID", job.BoardID,
		"template", job.TemplateName,
		"attempt", job.AttemptCount)

	start := time.Now()
	err = wp.executor.Execute(ctx, job)
	duration := time.Since(start)

	if err != nil {
		wp.logger.Error("job failed",
			"workerID", workerID,
			"jobID", job.ID,
			"error", err)
		if failErr := wp.store.Fail(job.ID, err.Error(), wp.cfg.MaxRetries); failErr != nil {
			wp.logger.Error("failed to mark job as failed", "jobID", job.ID, "error", failErr)
		}
		return true
	}

	wp.logger.Info("job completed",
		"workerID", workerID,
		"jobID", job.ID,
		"duration", duration.String())

	if err := wp.store.Complete(job.ID, duration.Milliseconds(), "Document available"); err != nil {
		wp.logger.Error("failed to mark job as complete", "jobID", job.ID, "error", err)
	}
	return true
}

// cleanupLoop periodically recovers stuck jobs and deletes old finished ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if wp.cfg.ClaimTimeout > 0 {
				recovered, err := wp.store.CleanupStuckJobs(wp.cfg.ClaimTimeout)
				if err != nil {
					wp.logger.Error("failed to cleanup stuck jobs", "error", err)
				} else if recovered > 0 {
					wp.logger.Info("recovered stuck jobs", "count", recovered)
				}
			}

			if wp.cfg.RetentionDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -wp.cfg.RetentionDays)
				deleted, err := wp.store.DeleteOlderThan(cutoff)
				if err != nil {
					wp.logger.Error("failed to delete old jobs", "error", err)
				} else if deleted > 0 {
					wp.logger.Info("deleted old jobs", "count", deleted)
				}
			}
		}
	}
}
