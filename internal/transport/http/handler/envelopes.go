package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trialsignup/signup/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// TrialEnvelope wraps the start-trial response. HandoffToken is empty when
// token signing is not configured.
type TrialEnvelope struct {
	*domain.TrialSubscription
	HandoffToken string `json:"handoff_token,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// httpError maps service errors to status codes. Provider failures never leak
// their underlying message. ErrUnavailable wins over a wrapped provider error.
func httpError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Category == domain.ProviderDeclined:
			writeJSON(w, http.StatusPaymentRequired, MessageEnvelope{Error: "payment declined", ErrorCode: pe.DeclineCode})
		case pe.Category == domain.ProviderRejected:
			writeJSON(w, http.StatusUnprocessableEntity, MessageEnvelope{Error: "request rejected by provider", ErrorCode: string(pe.Category)})
		case pe.Degraded():
			writeJSON(w, http.StatusBadGateway, MessageEnvelope{Error: "upstream provider unavailable", ErrorCode: string(pe.Category)})
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
