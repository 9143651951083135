package ha

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	"k8s.io/klog/v2"
)

// RouteKlog sends client-go's klog output through logger so lease renewals
// and API retries show up in the same structured stream.
func RouteKlog(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	klog.SetLogger(logr.FromSlogHandler(logger.Handler()))
}

// NewKubernetesClient builds a clientset from the in-cluster service account,
// or from kubeconfig when one is given.
func NewKubernetesClient(kubeconfig string) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

type task struct {
	name string
	fn   func(ctx context.Context)
}

// LeaderElector runs singleton background loops on exactly one replica.
// With leader election disabled the local instance is always the leader.
type LeaderElector struct {
	config   *HAConfig
	client   kubernetes.Interface
	identity string
	isLeader bool
	mu       sync.RWMutex
	logger   *slog.Logger
	tasks    []task
	onStart  func(ctx context.Context)
	onStop   func()
}

// NewLeaderElector creates a new LeaderElector. The identity should be unique
// per replica (typically the pod name or hostname).
func NewLeaderElector(cfg *HAConfig, client kubernetes.Interface, identity string, logger *slog.Logger) *LeaderElector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultHAConfig()
	}
	return &LeaderElector{
		config:   cfg,
		client:   client,
		identity: identity,
		logger:   logger,
	}
}

// AddTask registers a loop to run while this instance leads. fn must return
// when its context is cancelled. Must be called before Run.
func (le *LeaderElector) AddTask(name string, fn func(ctx context.Context)) {
	le.tasks = append(le.tasks, task{name: name, fn: fn})
}

// OnStartLeading registers a callback invoked when this instance becomes leader.
// The provided context is cancelled when leadership is lost.
func (le *LeaderElector) OnStartLeading(fn func(ctx context.Context)) {
	le.onStart = fn
}

// OnStopLeading registers a callback invoked when this instance loses leadership.
func (le *LeaderElector) OnStopLeading(fn func()) {
	le.onStop = fn
}

// IsLeader returns true if this instance is the current leader.
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) setLeader(v bool) {
	le.mu.Lock()
	le.isLeader = v
	le.mu.Unlock()
}

// Run blocks until ctx is cancelled. Registered tasks run for as long as this
// instance holds the lease; losing it cancels them.
func (le *LeaderElector) Run(ctx context.Context) {
	if !le.config.LeaderElectionEnabled || le.client == nil {
		le.logger.Info("leader election disabled, running singleton tasks locally", "tasks", len(le.tasks))
		le.lead(ctx)
		le.stopped()
		return
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      le.config.LeaseName,
			Namespace: le.config.LeaseNamespace,
		},
		Client: le.client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: le.identity,
		},
	}

	le.logger.Info("starting leader election",
		"identity", le.identity,
		"lease", le.config.LeaseName,
		"namespace", le.config.LeaseNamespace,
		"leaseDuration", le.config.LeaseDuration,
		"renewDeadline", le.config.RenewDeadline,
		"retryPeriod", le.config.RetryPeriod,
	)

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   le.config.LeaseDuration,
		RenewDeadline:   le.config.RenewDeadline,
		RetryPeriod:     le.config.RetryPeriod,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: le.lead,
			OnStoppedLeading: le.stopped,
			OnNewLeader: func(identity string) {
				if identity != le.identity {
					le.logger.Info("new leader elected", "leader", identity)
				}
			},
		},
	})
}

func (le *LeaderElector) lead(ctx context.Context) {
	le.setLeader(true)
	le.logger.Info("elected as leader", "identity", le.identity)
	if le.onStart != nil {
		le.onStart(ctx)
	}

	var wg sync.WaitGroup
	for _, t := range le.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			le.logger.Info("singleton task started", "task", t.name)
			t.fn(ctx)
			le.logger.Info("singleton task stopped", "task", t.name)
		}(t)
	}
	wg.Wait()
}

func (le *LeaderElector) stopped() {
	le.setLeader(false)
	le.logger.Info("lost leadership", "identity", le.identity)
	if le.onStop != nil {
		le.onStop()
	}
}
