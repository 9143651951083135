// Package server exposes the boarddocs HTTP API: the provider webhook
// endpoint, token and board management, document reads and the job API.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/autodocgen/boarddocs/pkg/cache"
	"github.com/autodocgen/boarddocs/pkg/credential"
	"github.com/autodocgen/boarddocs/pkg/database"
	"github.com/autodocgen/boarddocs/pkg/dispatch"
	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/jobs"
	"github.com/autodocgen/boarddocs/pkg/notify"
	"github.com/autodocgen/boarddocs/pkg/reconcile"
	"github.com/autodocgen/boarddocs/pkg/trello"
)

// maxWebhookBody bounds what the webhook endpoint reads from the provider.
const maxWebhookBody = 1 << 20

// Deps are the components the HTTP surface is built on. DB, Tokens,
// Provider, Reconciler, Dispatcher and Docs are required.
type Deps struct {
	DB         *gorm.DB
	Tokens     *credential.Store
	Provider   trello.Provider
	Reconciler *reconcile.Reconciler
	Dispatcher *dispatch.Dispatcher
	Docs       *docs.Cache
	Jobs       *jobs.JobStore
	Notes      *notify.Store
	Responses  *cache.ResponseCache
}

// Server serves the boarddocs API.
type Server struct {
	Deps

	origins           []string
	notificationLimit atomic.Int64
	wake              func()
	logger            *slog.Logger
	startedAt         time.Time
	ready             atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithOrigins sets the CORS origins allowed to call the API from a browser.
func WithOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithNotificationLimit caps how many notifications one request returns.
func WithNotificationLimit(n int) Option {
	return func(s *Server) { s.SetNotificationLimit(n) }
}

// WithWake is called after a job is enqueued through the API.
func WithWake(fn func()) Option {
	return func(s *Server) { s.wake = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server. It reports ready once SetReady is called.
func NewServer(deps Deps, opts ...Option) *Server {
	s := &Server{
		Deps:      deps,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	s.notificationLimit.Store(notify.MaxLimit)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReady marks the server as accepting traffic. Migrations have run by
// then; the webhook sweep is leader-gated and does not hold readiness back.
func (s *Server) SetReady(v bool) {
	s.ready.Store(v)
}

// SetNotificationLimit changes the per-request notification cap. Values
// outside 1..notify.MaxLimit fall back to notify.MaxLimit.
func (s *Server) SetNotificationLimit(n int) {
	if n <= 0 || n > notify.MaxLimit {
		n = notify.MaxLimit
	}
	s.notificationLimit.Store(int64(n))
}

// Routes builds the HTTP router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Provider webhook endpoint.
	r.Head("/pm", s.webhookVerifyHandler)
	r.Get("/pm", s.webhookVerifyHandler)
	r.Post("/pm", s.webhookEventHandler)

	r.Route("/trello", func(r chi.Router) {
		r.Post("/save_token", s.saveTokenHandler)
		r.With(s.Responses.BoardsMiddleware()).Get("/boards_with_headings", s.boardsWithHeadingsHandler)
		r.Post("/webhook/register", s.registerWebhooksHandler)
	})

	r.Route("/workflow", func(r chi.Router) {
		r.Get("/generated", s.generatedDocHandler)
		r.Post("/run", s.runWorkflowHandler)
	})

	r.Get("/generated_docs/all", s.allDocsHandler)
	r.Get("/notifications/{userID}", s.notificationsHandler)

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	if s.Jobs != nil {
		r.Mount("/api/jobs/v1", jobs.Router(s.Jobs))
	}

	return r
}

// healthHandler returns the liveness status of the server.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler reports ready once start-up finished and the database answers.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	allReady := s.ready.Load()

	dbStatus := map[string]string{"status": "up"}
	if s.DB != nil {
		if err := database.Ping(r.Context(), s.DB); err != nil {
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
			allReady = false
		}
	}

	status := "ready"
	code := http.StatusOK
	if !allReady {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"accepting": s.ready.Load(),
		"database":  dbStatus,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
