package handler

import (
	"log/slog"
	"net/http"

	"github.com/trialsignup/signup/internal/application/billing"
	"github.com/trialsignup/signup/internal/domain"
)

// HandoffSigner issues the token appended to the onboarding redirect.
type HandoffSigner interface {
	Sign(customerID, subscriptionID, email string) (string, error)
}

// BillingHandler exposes the provisioning calls the checkout flow makes.
type BillingHandler struct {
	svc    billing.Service
	signer HandoffSigner
}

// NewBillingHandler creates the handler. signer may be nil.
func NewBillingHandler(svc billing.Service, signer HandoffSigner) *BillingHandler {
	return &BillingHandler{svc: svc, signer: signer}
}

func (h *BillingHandler) Offer(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Offer())
}

func (h *BillingHandler) EnsureCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.EnsureCustomerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.svc.EnsureCustomer(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (h *BillingHandler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	var req domain.SetupIntentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := h.svc.CreateSetupIntent(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BillingHandler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	var req domain.ConfirmSetupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	conf, err := h.svc.ConfirmSetup(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (h *BillingHandler) SetupStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.SetupStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	conf, err := h.svc.SetupStatus(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

func (h *BillingHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	var req domain.StartTrialRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.svc.StartTrial(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	env := TrialEnvelope{TrialSubscription: sub}
	if h.signer != nil {
		tok, err := h.signer.Sign(req.CustomerID, sub.SubscriptionID, req.Email)
		if err != nil {
			slog.Warn("failed to sign handoff token", "customer_id", req.CustomerID, "err", err)
		} else {
			env.HandoffToken = tok
		}
	}
	writeJSON(w, http.StatusCreated, env)
}
