package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// notificationsHandler returns an account's most recent board events.
func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	if s.Notes == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "notifications": []any{}})
		return
	}

	ownerID := chi.URLParam(r, "userID")
	limit := int(s.notificationLimit.Load())
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	notes, err := s.Notes.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "notifications": notes})
}
