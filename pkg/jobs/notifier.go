package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PQNotifier wakes workers on PostgreSQL NOTIFY messages published by
// JobStore.Enqueue from any replica.
type PQNotifier struct {
	dsn     string
	channel string
	logger  *slog.Logger
}

// NewPQNotifier creates a notifier listening on channel.
func NewPQNotifier(dsn, channel string, logger *slog.Logger) *PQNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PQNotifier{dsn: dsn, channel: channel, logger: logger}
}

// Listen blocks until ctx is done, calling wake for every notification and
// after every reconnect.
func (n *PQNotifier) Listen(ctx context.Context, wake func()) error {
	listener := pq.NewListener(n.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			n.logger.Warn("job notify listener connection problem", "event", int(ev), "error", err)
		case pq.ListenerEventReconnected:
			n.logger.Info("job notify listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(n.channel); err != nil {
		return fmt.Errorf("listen on %q: %w", n.channel, err)
	}
	n.logger.Info("listening for job notifications", "channel", n.channel)

	idle := time.NewTicker(90 * time.Second)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-listener.Notify:
			// nil after a reconnect; notifications may have been missed.
			if note != nil {
				n.logger.Debug("job notification received", "jobID", note.Extra)
			}
			wake()
		case <-idle.C:
			go func() { _ = listener.Ping() }()
		}
	}
}
