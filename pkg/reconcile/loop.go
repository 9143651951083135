package reconcile

import (
	"context"
	"time"
)

// Loop runs a sweep every interval until ctx is cancelled. A zero interval
// disables the loop.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.logger.Info("periodic reconcile disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("reconcile loop started", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconcile loop stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}
