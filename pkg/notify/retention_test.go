package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingPruner struct {
	calls  atomic.Int32
	cutoff atomic.Int64
	err    error
}

func (p *countingPruner) DeleteOlderThan(cutoff time.Time) (int64, error) {
	p.calls.Add(1)
	p.cutoff.Store(cutoff.Unix())
	return 3, p.err
}

func TestNewRetentionWorker(t *testing.T) {
	worker := NewRetentionWorker(nil, 30, nil)

	if got := int(worker.retention.Hours()); got != 30*24 {
		t.Errorf("expected retention %d hours, got %d", 30*24, got)
	}
	if got := int(worker.interval.Hours()); got != 24 {
		t.Errorf("expected interval 24 hours, got %d", got)
	}
}

func TestRetentionWorkerDisabled(t *testing.T) {
	for _, w := range []*RetentionWorker{
		NewRetentionWorker(nil, 30, nil),
		NewRetentionWorker(&countingPruner{}, 0, nil),
	} {
		done := make(chan struct{})
		go func() {
			w.Run(context.Background())
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("disabled worker did not return")
		}
	}
}

func TestRetentionWorkerPrunesOnStart(t *testing.T) {
	p := &countingPruner{}
	w := NewRetentionWorker(p, 7, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for p.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if p.calls.Load() != 1 {
		t.Fatalf("expected one prune, got %d", p.calls.Load())
	}
	want := time.Now().AddDate(0, 0, -7).Unix()
	if diff := want - p.cutoff.Load(); diff < -5 || diff > 5 {
		t.Errorf("cutoff off by %ds", diff)
	}
}

func TestRetentionWorkerSurvivesErrors(t *testing.T) {
	p := &countingPruner{err: errors.New("db down")}
	w := NewRetentionWorker(p, 7, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if p.calls.Load() < 2 {
		t.Fatalf("expected repeated prunes despite errors, got %d", p.calls.Load())
	}
}
