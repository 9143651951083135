// Package ha lets several boarddocs replicas share one database: schema
// migrations run under a lock, and singleton loops (the reconcile sweep and
// notification retention) run only on the replica holding a Kubernetes Lease.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// HAConfig holds configuration for high-availability features.
type HAConfig struct {
	// LeaderElectionEnabled controls whether Kubernetes Lease-based leader
	// election is active. When false, the instance behaves as the sole
	// leader (suitable for single-replica deployments).
	LeaderElectionEnabled bool

	LeaseName      string
	LeaseNamespace string

	// LeaseDuration is how long non-leaders wait before trying to take over.
	LeaseDuration time.Duration
	RenewDeadline time.Duration
	RetryPeriod   time.Duration

	// MigrationLockEnabled controls whether AutoMigrate runs under a
	// database lock.
	MigrationLockEnabled bool

	// Identity is the unique identity of this instance for leader election.
	// Defaults to POD_NAME or the hostname.
	Identity string

	// Kubeconfig is used outside a cluster. Empty means in-cluster config.
	Kubeconfig string
}

// DefaultHAConfig returns an HAConfig with sensible defaults.
func DefaultHAConfig() *HAConfig {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "boarddocs"
	}
	return &HAConfig{
		LeaderElectionEnabled: false,
		LeaseName:             "boarddocs-leader",
		LeaseNamespace:        ns,
		LeaseDuration:         15 * time.Second,
		RenewDeadline:         10 * time.Second,
		RetryPeriod:           2 * time.Second,
		MigrationLockEnabled:  true,
		Identity:              defaultIdentity(),
	}
}

// HAConfigFromEnv reads HA configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - BOARDDOCS_LEADER_ELECTION_ENABLED: "true" or "false" (default: "false")
//   - BOARDDOCS_LEADER_LEASE_NAME: Lease resource name (default: "boarddocs-leader")
//   - BOARDDOCS_LEADER_LEASE_NAMESPACE: Lease namespace (default from POD_NAMESPACE or "boarddocs")
//   - BOARDDOCS_LEADER_LEASE_DURATION: seconds (default: 15)
//   - BOARDDOCS_LEADER_RENEW_DEADLINE: seconds (default: 10)
//   - BOARDDOCS_LEADER_RETRY_PERIOD: seconds (default: 2)
//   - BOARDDOCS_MIGRATION_LOCK_ENABLED: "true" or "false" (default: "true")
//   - POD_NAME: pod identity for leader election
//   - KUBECONFIG: kubeconfig path when running outside a cluster
func HAConfigFromEnv() *HAConfig {
	cfg := DefaultHAConfig()

	if v := os.Getenv("BOARDDOCS_LEADER_ELECTION_ENABLED"); v != "" {
		cfg.LeaderElectionEnabled = parseBool(v)
	}
	if v := os.Getenv("BOARDDOCS_LEADER_LEASE_NAME"); v != "" {
		cfg.LeaseName = v
	}
	if v := os.Getenv("BOARDDOCS_LEADER_LEASE_NAMESPACE"); v != "" {
		cfg.LeaseNamespace = v
	}
	setSeconds(&cfg.LeaseDuration, "BOARDDOCS_LEADER_LEASE_DURATION")
	setSeconds(&cfg.RenewDeadline, "BOARDDOCS_LEADER_RENEW_DEADLINE")
	setSeconds(&cfg.RetryPeriod, "BOARDDOCS_LEADER_RETRY_PERIOD")
	if v := os.Getenv("BOARDDOCS_MIGRATION_LOCK_ENABLED"); v != "" {
		cfg.MigrationLockEnabled = parseBool(v)
	}
	if v := os.Getenv("POD_NAME"); v != "" {
		cfg.Identity = v
	}
	cfg.Kubeconfig = os.Getenv("KUBECONFIG")

	return cfg
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func setSeconds(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			*dst = time.Duration(secs) * time.Second
		}
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
