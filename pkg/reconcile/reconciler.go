// Package reconcile keeps board mappings and Trello webhook registrations in
// agreement with the accounts that have stored credentials.
package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/autodocgen/boarddocs/pkg/board"
	"github.com/autodocgen/boarddocs/pkg/credential"
	"github.com/autodocgen/boarddocs/pkg/trello"
)

// Outcome is the result of reconciling one board.
type Outcome string

const (
	OutcomeRegistered Outcome = "registered"
	OutcomeExists     Outcome = "exists"
	OutcomeFailed     Outcome = "failed"
)

// BoardResult reports what happened to one board during a sweep.
type BoardResult struct {
	BoardID   string  `json:"board_id"`
	BoardName string  `json:"board_name"`
	Status    Outcome `json:"status"`
	Error     string  `json:"error,omitempty"`
	// MappingError is set when the board could not be recorded as owned.
	// Events for it are dropped until a later sweep maps it.
	MappingError string `json:"mapping_error,omitempty"`
}

// OwnerReport is the result of reconciling one account.
type OwnerReport struct {
	OwnerID string        `json:"owner_id"`
	Boards  []BoardResult `json:"boards"`
	Error   string        `json:"error,omitempty"`
}

// SweepReport aggregates a full sweep.
type SweepReport struct {
	Owners     []OwnerReport `json:"owners"`
	Accounts   int           `json:"accounts"`
	Skipped    int           `json:"skipped"`
	Boards     int           `json:"boards"`
	Registered int           `json:"registered"`
	Existing   int           `json:"existing"`
	Failed     int           `json:"failed"`
	Unmapped   int           `json:"unmapped"`
}

// TokenSource lists stored credentials.
type TokenSource interface {
	ListAll(ctx context.Context) ([]credential.Credential, error)
}

// MappingWriter records board ownership.
type MappingWriter interface {
	Upsert(ctx context.Context, m *board.BoardMapping) error
}

// Reconciler drives reconciliation sweeps.
type Reconciler struct {
	tokens            TokenSource
	mappings          MappingWriter
	provider          trello.Provider
	callbackURL       string
	registrationDelay atomic.Int64
	logger            *slog.Logger
}

// NewReconciler creates a Reconciler. registrationDelay is waited after each
// successful registration to stay under the provider's rate limit.
func NewReconciler(tokens TokenSource, mappings MappingWriter, provider trello.Provider, callbackURL string, registrationDelay time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		tokens:      tokens,
		mappings:    mappings,
		provider:    provider,
		callbackURL: callbackURL,
		logger:      logger,
	}
	r.SetRegistrationDelay(registrationDelay)
	return r
}

// SetRegistrationDelay changes the pause after each registration. It takes
// effect from the next registration, including one in a running sweep.
func (r *Reconciler) SetRegistrationDelay(d time.Duration) {
	r.registrationDelay.Store(int64(d))
}

// Sweep reconciles every account with a stored credential. A failure for one
// account is recorded in the report and does not stop the sweep. The only
// error returned is a failure to list credentials.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	creds, err := r.tokens.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Accounts: len(creds)}
	for _, c := range creds {
		if ctx.Err() != nil {
			break
		}
		or, err := r.SweepOwner(ctx, c.OwnerID, c.Token)
		if err != nil {
			r.logger.Warn("skipping account, could not fetch boards", "ownerID", c.OwnerID, "error", err)
			report.Skipped++
		}
		report.add(or)
	}

	r.logger.Info("reconcile sweep completed",
		"accounts", report.Accounts,
		"skipped", report.Skipped,
		"boards", report.Boards,
		"registered", report.Registered,
		"existing", report.Existing,
		"failed", report.Failed,
		"unmapped", report.Unmapped)
	return report, nil
}

func (s *SweepReport) add(or OwnerReport) {
	s.Owners = append(s.Owners, or)
	for _, b := range or.Boards {
		s.Boards++
		switch b.Status {
		case OutcomeRegistered:
			s.Registered++
		case OutcomeExists:
			s.Existing++
		case OutcomeFailed:
			s.Failed++
		}
		if b.MappingError != "" {
			s.Unmapped++
			if b.Status != OutcomeFailed {
				s.Failed++
			}
		}
	}
}

// SweepOwner reconciles one account: it maps every open board to ownerID and
// ensures a webhook exists for each. The returned error is non-nil only when
// the account's boards could not be fetched; per-board failures are reported
// in the result.
func (r *Reconciler) SweepOwner(ctx context.Context, ownerID, token string) (OwnerReport, error) {
	report := OwnerReport{OwnerID: ownerID, Boards: []BoardResult{}}

	boards, err := r.provider.ListBoards(ctx, token)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}

	hooks, listErr := r.provider.ListWebhooks(ctx, token)
	if listErr != nil {
		r.logger.Warn("could not list existing webhooks, registering without duplicate check",
			"ownerID", ownerID, "error", listErr)
	}
	existing := webhookIndex(hooks)

	for _, b := range boards {
		if b.ID == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		report.Boards = append(report.Boards, r.reconcileBoard(ctx, ownerID, token, b, existing))
	}
	return report, nil
}

func (r *Reconciler) reconcileBoard(ctx context.Context, ownerID, token string, b trello.Board, existing map[webhookKey]struct{}) BoardResult {
	result := BoardResult{BoardID: b.ID, BoardName: b.Name}

	if err := r.mappings.Upsert(ctx, &board.BoardMapping{
		BoardID:   b.ID,
		OwnerID:   ownerID,
		BoardName: b.Name,
		BoardDesc: b.Desc,
	}); err != nil {
		// The webhook is still worth registering; the next sweep retries the mapping.
		r.logger.Error("failed to map board", "boardID", b.ID, "ownerID", ownerID, "error", err)
		result.MappingError = err.Error()
	}

	key := webhookKey{callbackURL: r.callbackURL, modelID: b.ID}
	if _, ok := existing[key]; ok {
		r.logger.Debug("webhook already registered", "boardID", b.ID, "boardName", b.Name)
		result.Status = OutcomeExists
		return result
	}

	if _, err := r.provider.RegisterWebhook(ctx, token, r.callbackURL, b.ID, b.Name); err != nil {
		r.logger.Error("failed to register webhook", "boardID", b.ID, "boardName", b.Name, "ownerID", ownerID, "error", err)
		result.Status = OutcomeFailed
		result.Error = err.Error()
		return result
	}

	existing[key] = struct{}{}
	r.logger.Info("webhook registered", "boardID", b.ID, "boardName", b.Name, "ownerID", ownerID)
	result.Status = OutcomeRegistered
	r.pause(ctx)
	return result
}

// MapOwnerBoards fetches ownerID's open boards and records their mappings
// without touching webhooks. It returns how many boards were mapped.
func (r *Reconciler) MapOwnerBoards(ctx context.Context, ownerID, token string) (int, error) {
	boards, err := r.provider.ListBoards(ctx, token)
	if err != nil {
		return 0, err
	}
	mapped := 0
	for _, b := range boards {
		if b.ID == "" {
			continue
		}
		if err := r.mappings.Upsert(ctx, &board.BoardMapping{
			BoardID:   b.ID,
			OwnerID:   ownerID,
			BoardName: b.Name,
			BoardDesc: b.Desc,
		}); err != nil {
			return mapped, err
		}
		mapped++
	}
	return mapped, nil
}

func (r *Reconciler) pause(ctx context.Context) {
	d := time.Duration(r.registrationDelay.Load())
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type webhookKey struct {
	callbackURL string
	modelID     string
}

func webhookIndex(hooks []trello.Webhook) map[webhookKey]struct{} {
	idx := make(map[webhookKey]struct{}, len(hooks))
	for _, h := range hooks {
		idx[webhookKey{callbackURL: h.CallbackURL, modelID: h.IDModel}] = struct{}{}
	}
	return idx
}
