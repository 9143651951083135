package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/autodocgen/boarddocs/pkg/apperr"
	"github.com/autodocgen/boarddocs/pkg/reconcile"
)

type saveTokenRequest struct {
	UserID      string `json:"user_id"`
	TrelloToken string `json:"trello_token"`
}

// saveTokenHandler stores an account's token and maps its boards right away.
func (s *Server) saveTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req saveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.TrelloToken == "" {
		writeMessage(w, http.StatusBadRequest, "user_id and trello_token are required")
		return
	}

	if err := s.Tokens.Save(r.Context(), req.UserID, req.TrelloToken); err != nil {
		s.logger.Error("failed to save token", "ownerID", req.UserID, "error", err)
		writeMessage(w, statusFor(err), "Failed to save token")
		return
	}
	s.Responses.InvalidateOwner(req.UserID)

	mapped, err := s.Reconciler.MapOwnerBoards(r.Context(), req.UserID, req.TrelloToken)
	if err != nil {
		s.logger.Warn("token saved but boards could not be mapped", "ownerID", req.UserID, "mapped", mapped, "error", err)
		writeMessage(w, statusFor(err), "Failed to fetch boards: "+publicMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       fmt.Sprintf("Trello token saved and %d boards mapped to user %s", mapped, req.UserID),
		"boards_mapped": mapped,
	})
}

type boardWithHeadings struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Desc             string   `json:"desc"`
	HasGeneratedDoc  bool     `json:"has_generated_doc"`
	PreviousHeadings []string `json:"previous_headings"`
}

// boardsWithHeadingsHandler lists an account's open boards with what has
// already been generated for each. Provider failures are reported, never
// answered from stored mappings, which outlive closed boards.
func (s *Server) boardsWithHeadingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := r.URL.Query().Get("user_id")
	if ownerID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := s.Tokens.Get(ctx, ownerID)
	if err != nil {
		msg := publicMessage(err)
		if apperr.KindOf(err) == apperr.KindNotFound {
			msg = "User not connected to Trello"
		}
		writeJSON(w, statusFor(err), map[string]any{"status": "error", "message": msg, "boards": []any{}})
		return
	}

	boards, err := s.Provider.ListBoards(ctx, token)
	if err != nil {
		s.logger.Warn("listing boards from provider failed", "ownerID", ownerID, "error", err)
		writeJSON(w, statusFor(err), map[string]any{"status": "error", "message": "Failed to fetch boards: " + publicMessage(err), "boards": []any{}})
		return
	}

	withDocs, err := s.Docs.Store().ProjectsWithDocs(ctx, ownerID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	out := make([]boardWithHeadings, 0, len(boards))
	for _, b := range boards {
		if b.ID == "" {
			continue
		}
		entry := boardWithHeadings{ID: b.ID, Name: b.Name, Desc: b.Desc, PreviousHeadings: []string{}}
		if withDocs.Contains(b.ID) {
			entry.HasGeneratedDoc = true
			headings, err := s.Docs.PreviousHeadings(ctx, ownerID, b.ID)
			if err != nil {
				s.writeErr(w, err)
				return
			}
			entry.PreviousHeadings = headings
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "boards": out})
}

// registerWebhooksHandler runs a one-account reconcile pass.
func (s *Server) registerWebhooksHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := r.URL.Query().Get("user_id")
	if ownerID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := s.Tokens.Get(ctx, ownerID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	report, err := s.Reconciler.SweepOwner(ctx, ownerID, token)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.Responses.InvalidateOwner(ownerID)

	status := "success"
	for _, b := range report.Boards {
		if b.MappingError != "" || b.Status == reconcile.OutcomeFailed {
			status = "partial"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"user_id": ownerID,
		"results": report.Boards,
	})
}
