package dispatch

import (
	"context"
	"errors"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/datatypes"

	"github.com/autodocgen/boarddocs/pkg/apperr"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/notify"
)

// State is how far an event got.
type State string

const (
	StateReceived  State = "received"
	StateResolved  State = "resolved"
	StateScheduled State = "scheduled"
	StateDropped   State = "dropped"
)

// Outcome describes what Handle did with one event.
type Outcome struct {
	State   State    `json:"state"`
	BoardID string   `json:"board_id,omitempty"`
	Owners  []string `json:"owners,omitempty"`
	Jobs    []string `json:"jobs,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// OwnerResolver finds the accounts a board is mapped to.
type OwnerResolver interface {
	ListForBoard(ctx context.Context, boardID string) (mapset.Set[string], error)
}

// JobQueue schedules generation.
type JobQueue interface {
	Enqueue(job *jobs.GenerationJob) (*jobs.GenerationJob, error)
}

// NotificationWriter records activity for an owner.
type NotificationWriter interface {
	Append(ctx context.Context, n *notify.Notification) error
}

// Dispatcher routes webhook events. Handle never blocks on generation.
type Dispatcher struct {
	owners   OwnerResolver
	queue    JobQueue
	notes    NotificationWriter
	template string
	wake     func()
	onOwner  func(ownerID string)
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWake is called after jobs are enqueued so idle workers start at once.
func WithWake(fn func()) Option {
	return func(d *Dispatcher) { d.wake = fn }
}

// WithOwnerHook is called for every owner an event resolves to.
func WithOwnerHook(fn func(ownerID string)) Option {
	return func(d *Dispatcher) { d.onOwner = fn }
}

// WithTemplate overrides the template used for webhook-triggered jobs.
func WithTemplate(name string) Option {
	return func(d *Dispatcher) { d.template = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher. notes may be nil.
func NewDispatcher(owners OwnerResolver, queue JobQueue, notes NotificationWriter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		owners:   owners,
		queue:    queue,
		notes:    notes,
		template: jobs.DefaultTemplate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one webhook body. It never returns an error: malformed
// events and unmapped boards are dropped, and enqueue or notification
// failures are logged. The caller acknowledges regardless.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) Outcome {
	ev, err := ParseEvent(body)
	if err != nil {
		reason := "invalid payload"
		if errors.Is(err, ErrNoBoard) {
			reason = "no board id"
		}
		d.logger.Debug("dropping webhook event", "reason", reason, "error", err)
		return Outcome{State: StateDropped, Reason: reason}
	}

	out := Outcome{State: StateReceived, BoardID: ev.BoardID}

	owners, err := d.owners.ListForBoard(ctx, ev.BoardID)
	if err != nil {
		d.logger.Error("could not resolve board owners, dropping event", "boardID", ev.BoardID, "error", err)
		out.State = StateDropped
		out.Reason = string(apperr.KindOf(err))
		return out
	}
	if owners == nil || owners.Cardinality() == 0 {
		d.logger.Info("no owner mapped for board, dropping event", "boardID", ev.BoardID, "eventType", ev.Type)
		out.State = StateDropped
		out.Reason = "unmapped board"
		return out
	}

	out.State = StateResolved
	out.Owners = mapset.Sorted(owners)

	for _, owner := range out.Owners {
		job, err := d.queue.Enqueue(&jobs.GenerationJob{
			OwnerID:        owner,
			BoardID:        ev.BoardID,
			TemplateName:   d.template,
			Trigger:        jobs.TriggerWebhook,
			IdempotencyKey: jobs.IdempotencyKeyFor(owner, ev.BoardID, d.template),
			Payload:        datatypes.JSON(ev.Raw),
		})
		if err != nil {
			d.logger.Error("failed to schedule generation", "boardID", ev.BoardID, "ownerID", owner, "error", err)
		} else {
			out.Jobs = append(out.Jobs, job.ID)
		}

		d.notify(ctx, owner, ev)
		if d.onOwner != nil {
			d.onOwner(owner)
		}
	}

	if len(out.Jobs) > 0 {
		out.State = StateScheduled
		if d.wake != nil {
			d.wake()
		}
	}

	d.logger.Info("webhook event dispatched",
		"boardID", ev.BoardID,
		"eventType", ev.Type,
		"owners", len(out.Owners),
		"jobs", len(out.Jobs))
	return out
}

func (d *Dispatcher) notify(ctx context.Context, owner string, ev Event) {
	if d.notes == nil {
		return
	}
	err := d.notes.Append(ctx, &notify.Notification{
		OwnerID:    owner,
		BoardID:    ev.BoardID,
		BoardName:  ev.BoardName,
		EventType:  ev.Type,
		CardName:   ev.CardName,
		ListBefore: ev.ListBefore,
		ListAfter:  ev.ListAfter,
		ActorName:  ev.ActorName,
	})
	if err != nil {
		d.logger.Warn("failed to record notification", "boardID", ev.BoardID, "ownerID", owner, "error", err)
	}
}
