package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trialsignup/signup/internal/application/phoneverify"
	"github.com/trialsignup/signup/internal/application/verification"
	"github.com/trialsignup/signup/internal/domain"
)

// VerificationHandler proxies the email and phone verification services.
type VerificationHandler struct {
	svc verification.Service
}

func NewVerificationHandler(svc verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

func (h *VerificationHandler) ValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateEmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.ValidateEmail(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *VerificationHandler) ValidatePhone(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidatePhoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.ValidatePhone(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PhoneVerifyHandler handles the secondary phone verification flow.
type PhoneVerifyHandler struct {
	svc phoneverify.Service
}

func NewPhoneVerifyHandler(svc phoneverify.Service) *PhoneVerifyHandler {
	return &PhoneVerifyHandler{svc: svc}
}

func (h *PhoneVerifyHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req domain.PhoneVerificationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch chi.URLParam(r, "action") {
	case "request":
		if err := h.svc.Request(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification code sent"})
	case "validate-code":
		if err := h.svc.Validate(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "phone verified"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
