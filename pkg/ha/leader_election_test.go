package ha

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestLeaderElector_IsLeaderDefault(t *testing.T) {
	le := NewLeaderElector(&HAConfig{LeaderElectionEnabled: true}, nil, "replica-a", slog.Default())
	if le.IsLeader() {
		t.Error("IsLeader should return false initially")
	}
}

func TestNewLeaderElector_NilArgs(t *testing.T) {
	le := NewLeaderElector(nil, nil, "replica-a", nil)
	if le.logger == nil {
		t.Error("logger should default to slog.Default() when nil")
	}
	if le.config == nil || le.config.LeaseName == "" {
		t.Error("config should default when nil")
	}
}

func TestLeaderElector_DisabledRunsTasksLocally(t *testing.T) {
	le := NewLeaderElector(&HAConfig{LeaderElectionEnabled: false}, nil, "replica-a", nil)

	var sweeps, prunes atomic.Int32
	le.AddTask("reconcile", func(ctx context.Context) {
		sweeps.Add(1)
		<-ctx.Done()
	})
	le.AddTask("notification-retention", func(ctx context.Context) {
		prunes.Add(1)
		<-ctx.Done()
	})

	var started, stopped atomic.Bool
	le.OnStartLeading(func(context.Context) { started.Store(true) })
	le.OnStopLeading(func() { stopped.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		le.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for (sweeps.Load() == 0 || prunes.Load() == 0) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sweeps.Load() != 1 || prunes.Load() != 1 {
		t.Fatalf("tasks started = (%d, %d), want (1, 1)", sweeps.Load(), prunes.Load())
	}
	if !le.IsLeader() {
		t.Error("IsLeader should be true while tasks run")
	}
	if !started.Load() {
		t.Error("OnStartLeading was not called")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if le.IsLeader() {
		t.Error("IsLeader should be false after Run returns")
	}
	if !stopped.Load() {
		t.Error("OnStopLeading was not called")
	}
}

func TestLeaderElector_NoClientFallsBackToLocal(t *testing.T) {
	le := NewLeaderElector(&HAConfig{LeaderElectionEnabled: true}, nil, "replica-a", nil)
	ran := make(chan struct{})
	le.AddTask("once", func(context.Context) { close(ran) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go le.Run(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run without a kubernetes client")
	}
}

func TestNewKubernetesClient_BadKubeconfig(t *testing.T) {
	if _, err := NewKubernetesClient("/nonexistent/kubeconfig"); err == nil {
		t.Error("expected error for missing kubeconfig")
	}
}
