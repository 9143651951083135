package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/autodocgen/boarddocs/pkg/docs"
	"github.com/autodocgen/boarddocs/pkg/jobs"
)

// generatedDocHandler returns the artifact for a key, generating it first if
// it does not exist yet.
func (s *Server) generatedDocHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := docs.Key{
		OwnerID:      q.Get("user_id"),
		ProjectID:    q.Get("project_id"),
		TemplateName: q.Get("template_name"),
	}.Normalize()

	view, err := s.Docs.GetOrGenerate(r.Context(), key)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"template_name":      view.TemplateName,
		"generated_docs":     view.Document,
		"generated_diagrams": view.Diagrams,
		"board_name":         view.BoardName,
	})
}

type runWorkflowRequest struct {
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
	TemplateName string `json:"template_name"`
}

// runWorkflowHandler queues a generation and returns without waiting for it.
func (s *Server) runWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		writeMessage(w, http.StatusServiceUnavailable, "job queue disabled")
		return
	}

	var req runWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.ProjectID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id and project_id are required")
		return
	}
	key := docs.Key{OwnerID: req.UserID, ProjectID: req.ProjectID, TemplateName: req.TemplateName}.Normalize()

	job, err := s.Jobs.Enqueue(&jobs.GenerationJob{
		OwnerID:        key.OwnerID,
		BoardID:        key.ProjectID,
		TemplateName:   key.TemplateName,
		Trigger:        jobs.TriggerAPI,
		IdempotencyKey: jobs.IdempotencyKeyFor(key.OwnerID, key.ProjectID, key.TemplateName),
	})
	if err != nil {
		s.logger.Error("failed to enqueue generation", "ownerID", key.OwnerID, "boardID", key.ProjectID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to queue generation")
		return
	}
	if s.wake != nil {
		s.wake()
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "queued",
		"job_id": job.ID,
		"state":  job.State,
	})
}

type docSummary struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	TemplateName  string    `json:"template_name"`
	GeneratedDocs string    `json:"generated_docs"`
	BoardName     string    `json:"board_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// allDocsHandler lists every artifact of an account, newest first.
func (s *Server) allDocsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("user_id")
	if ownerID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	views, err := s.Docs.ListForOwner(r.Context(), ownerID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if len(views) == 0 {
		writeMessage(w, http.StatusNotFound, "No generated documents found")
		return
	}

	out := make([]docSummary, len(views))
	for i, v := range views {
		out[i] = docSummary{
			ID:            v.ID,
			ProjectID:     v.ProjectID,
			TemplateName:  v.TemplateName,
			GeneratedDocs: v.Document,
			BoardName:     v.BoardName,
			CreatedAt:     v.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"count":     len(out),
		"documents": out,
	})
}
