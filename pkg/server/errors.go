package server

import (
	"errors"
	"net/http"

	"github.com/autodocgen/boarddocs/pkg/apperr"
)

// errorResponse is the body of every failed explicit API call.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTransientExternal, apperr.KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps driver details out of responses.
func publicMessage(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == apperr.KindStorage {
		return "storage unavailable"
	}
	if e.Err == nil {
		return e.Error()
	}
	if e.Kind == apperr.KindGeneration {
		return "document generation failed: " + e.Err.Error()
	}
	return e.Err.Error()
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, errorResponse{Status: "error", Message: publicMessage(err)})
}

func writeMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Status: "error", Message: message})
}
