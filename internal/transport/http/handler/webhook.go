package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/trialsignup/signup/internal/domain"
)

const maxWebhookBody = 65536

// EventHandler processes a raw billing webhook delivery.
type EventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler receives billing provider callbacks. Anything past signature
// verification is answered 200 so the provider does not redeliver.
type WebhookHandler struct {
	events EventHandler
}

func NewWebhookHandler(events EventHandler) *WebhookHandler {
	return &WebhookHandler{events: events}
}

func (h *WebhookHandler) Billing(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if err := h.events.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}
		slog.Error("webhook handling failed", "err", err)
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "received"})
}
