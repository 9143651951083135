package server

import (
	"io"
	"net/http"
)

// webhookVerifyHandler answers the provider's HEAD/GET handshake.
func (s *Server) webhookVerifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// webhookEventHandler acknowledges every delivery. Generation is queued, so
// the response never waits on it.
func (s *Server) webhookEventHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Warn("could not read webhook body", "error", err)
	} else {
		out := s.Dispatcher.Handle(r.Context(), body)
		s.logger.Debug("webhook handled", "state", out.State, "boardID", out.BoardID, "reason", out.Reason)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
