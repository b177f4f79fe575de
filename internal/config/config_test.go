package config

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsignup/signup/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRIAL_DAYS", "")
	cfg := Load()
	assert.Equal(t, 30, cfg.Offer.TrialDays)
	assert.Equal(t, 5*time.Minute, cfg.VerdictCacheTTL)
	assert.Equal(t, "crm_sync", cfg.AMQPQueue)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRIAL_DAYS", "14")
	t.Setenv("VERIFY_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	cfg := Load()
	assert.Equal(t, 14, cfg.Offer.TrialDays)
	assert.Equal(t, 2*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate_ListsMissingCredentials(t *testing.T) {
	cfg := &Config{StripeSecretKey: "sk_test", Offer: domain.PricingOffer{PriceID: "price_1"}}
	err := cfg.Validate()
	require.Error(t, err)

	var cerr *domain.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"STRIPE_WEBHOOK_SECRET", "EMAIL_VERIFY_API_KEY", "PHONE_VERIFY_API_KEY"}, cerr.Missing)
}

func TestValidate_Complete(t *testing.T) {
	cfg := &Config{
		StripeSecretKey:     "sk_test",
		StripeWebhookSecret: "whsec",
		EmailVerifyAPIKey:   "e",
		PhoneVerifyAPIKey:   "p",
		Offer:               domain.PricingOffer{PriceID: "price_1"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7")
	cfg := Load()
	require.Len(t, cfg.TrustedProxies, 2)
	assert.True(t, cfg.TrustedProxies[0].Contains(netip.MustParseAddr("10.20.30.40")))
	assert.True(t, cfg.TrustedProxies[1].Contains(netip.MustParseAddr("192.168.1.7")))
	assert.False(t, cfg.TrustedProxies[1].Contains(netip.MustParseAddr("192.168.1.8")))
}

func TestLoad_NoTrustedProxiesByDefault(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "")
	assert.Empty(t, Load().TrustedProxies)
}

func TestValidate_RejectsBadTrustedProxy(t *testing.T) {
	for k, v := range map[string]string{
		"STRIPE_SECRET_KEY":     "sk_test",
		"STRIPE_WEBHOOK_SECRET": "whsec",
		"EMAIL_VERIFY_API_KEY":  "e",
		"PHONE_VERIFY_API_KEY":  "p",
		"PRICE_ID":              "price_1",
		"TRUSTED_PROXIES":       "10.0.0.1,not-an-ip",
	} {
		t.Setenv(k, v)
	}
	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")
}
