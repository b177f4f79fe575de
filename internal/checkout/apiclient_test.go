package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

func TestAPIClient_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/trials", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"payment declined","error_code":"card_declined"}`))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, time.Second).StartTrial(context.Background(), domain.StartTrialRequest{CustomerID: "cus_1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, "card_declined", apiErr.Code)
}

func TestAPIClient_StartTrialReadsFlattenedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.StartTrialRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AFF123", req.AffiliateID)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"subscription_id":"sub_1","status":"trialing","trial_end":1717243200,"handoff_token":"tok"}`))
	}))
	defer srv.Close()

	res, err := NewAPIClient(srv.URL+"/", time.Second).StartTrial(context.Background(), domain.StartTrialRequest{AffiliateID: "AFF123"})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", res.SubscriptionID)
	assert.Equal(t, int64(1717243200), res.TrialEnd)
	assert.Equal(t, "tok", res.HandoffToken)
}

func TestAPIClient_UnavailableValidatorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"service unavailable"}`))
	}))
	defer srv.Close()

	c := NewEmailValidator(NewAPIClient(srv.URL, time.Second).ValidateEmail, 0)
	res, err := c.Validate(context.Background(), "john@gmail.com", Options{Immediate: true})
	require.NoError(t, err)
	assert.Equal(t, domain.KindDegraded, res.Kind)
	assert.True(t, res.IsValid)
}

func TestServerWidget_PollsUntilChallengeResolves(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/setup-intents/confirm":
			var req domain.ConfirmSetupRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "pm_card_visa", req.PaymentMethodID)
			_ = json.NewEncoder(w).Encode(domain.SetupConfirmation{Status: domain.SetupRequiresAction, NextActionURL: "https://example.com/3ds"})
		case "/v1/setup-intents/status":
			status := domain.SetupRequiresAction
			if polls.Add(1) >= 2 {
				status = domain.SetupSucceeded
			}
			_ = json.NewEncoder(w).Encode(domain.SetupConfirmation{Status: status, PaymentMethodID: "pm_1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var challenged string
	w := &ServerWidget{
		API:             NewAPIClient(srv.URL, time.Second),
		PaymentMethodID: "pm_card_visa",
		Challenge: func(_ context.Context, url string) error {
			challenged = url
			return nil
		},
		PollInterval: time.Millisecond,
	}
	ctx := context.Background()
	pending, err := w.Confirm(ctx, "seti_1_secret_x")
	require.NoError(t, err)
	require.Equal(t, domain.SetupRequiresAction, pending.Status)

	final, err := w.CompleteAction(ctx, "seti_1_secret_x", pending)
	require.NoError(t, err)
	assert.Equal(t, domain.SetupSucceeded, final.Status)
	assert.Equal(t, "https://example.com/3ds", challenged)
	assert.Equal(t, int32(2), polls.Load())
}
