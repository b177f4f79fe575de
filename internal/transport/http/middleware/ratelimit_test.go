package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestClientIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.1/32"),
	})
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"direct peer ignores forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.5:443", "203.0.113.5"},
		{"direct peer ignores real ip", map[string]string{"X-Real-Ip": "9.9.9.9"}, "203.0.113.5:443", "203.0.113.5"},
		{"trusted proxy uses last untrusted hop", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4, 10.0.0.2"}, "10.0.0.1:443", "1.2.3.4"},
		{"trusted proxy real ip", map[string]string{"X-Real-Ip": "9.10.11.12"}, "192.168.1.1:54321", "9.10.11.12"},
		{"trusted proxy garbage forwarded", map[string]string{"X-Forwarded-For": "nonsense"}, "10.0.0.1:443", "10.0.0.1"},
		{"trusted proxy no headers", nil, "10.0.0.1:443", "10.0.0.1"},
		{"remote without port", nil, "203.0.113.9", "203.0.113.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, rl.clientIP(req))
		})
	}
}

func TestSweep_DropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, nil)
	rl.get("1.1.1.1")
	rl.get("2.2.2.2")
	rl.limiters["1.1.1.1"].lastSeen = time.Now().Add(-time.Hour)

	assert.Equal(t, 1, rl.sweep(time.Now().Add(-limiterIdle)))
	_, kept := rl.limiters["2.2.2.2"]
	assert.True(t, kept)
}

func TestLimit_RejectsOverBurstPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, nil)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, withIP("1.1.1.1"))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, withIP("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"too many requests","error_code":"rate_limited"}`, second.Body.String())
	assert.Equal(t, "1000", second.Header().Get("Retry-After"))

	other := httptest.NewRecorder()
	h.ServeHTTP(other, withIP("2.2.2.2"))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestLimit_ForwardedHeaderDoesNotResetBucket(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1, nil)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, withIP("1.1.1.1"))
	assert.Equal(t, http.StatusOK, first.Code)

	spoofed := withIP("1.1.1.1")
	spoofed.Header.Set("X-Forwarded-For", "198.51.100.99")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, spoofed)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func withIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/validate/email", nil)
	req.RemoteAddr = ip + ":40000"
	return req
}
