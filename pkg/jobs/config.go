package jobs

import (
	"os"
	"strconv"
	"time"
)

// JobConfig controls job queue and worker behavior.
type JobConfig struct {
	Concurrency   int           // Max concurrent workers. Default 3.
	MaxRetries    int           // Max attempts per job. Default 3.
	PollInterval  time.Duration // How often idle workers poll for new jobs. Default 2s.
	ClaimTimeout  time.Duration // Max time a job can be "running" before it is considered stuck. Default 15m.
	RetentionDays int           // How long to keep finished jobs. Default 7.
	Enabled       bool          // Whether workers run in this process. Default true.
	NotifyChannel string        // PostgreSQL NOTIFY channel used to wake workers. Empty disables.
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency:   3,
		MaxRetries:    3,
		PollInterval:  2 * time.Second,
		ClaimTimeout:  15 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
		NotifyChannel: "generation_jobs",
	}
}

// JobConfigFromEnv loads config from environment variables.
// BOARDDOCS_JOB_CONCURRENCY, BOARDDOCS_JOB_MAX_RETRIES, BOARDDOCS_JOB_POLL_INTERVAL_SECONDS,
// BOARDDOCS_JOB_CLAIM_TIMEOUT_MINUTES, BOARDDOCS_JOB_RETENTION_DAYS, BOARDDOCS_JOB_ENABLED,
// BOARDDOCS_JOB_NOTIFY_CHANNEL
func JobConfigFromEnv() *JobConfig {
	cfg := DefaultJobConfig()

	if v := os.Getenv("BOARDDOCS_JOB_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("BOARDDOCS_JOB_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}

	if v := os.Getenv("BOARDDOCS_JOB_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("BOARDDOCS_JOB_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClaimTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("BOARDDOCS_JOB_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}

	if v := os.Getenv("BOARDDOCS_JOB_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	if v, ok := os.LookupEnv("BOARDDOCS_JOB_NOTIFY_CHANNEL"); ok {
		cfg.NotifyChannel = v
	}

	return cfg
}
