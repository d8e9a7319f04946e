package ratelimit

import (
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "checkout:user:42:/api/billing/checkout", Key("checkout", "user:42", "/api/billing/checkout"))
}

func TestIdentifier(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "192.0.2.10:51234"

	assert.Equal(t, "user:emp-1", Identifier("emp-1", r))
	assert.Equal(t, "ip:192.0.2.10", Identifier("", r))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.2:80", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.1:4444", "192.0.2.1"},
		{"remote addr without port", nil, "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestResultHeaders(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	reset := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	allowed := (&Result{OK: true, Limit: 5, Remaining: 2, ResetAt: reset}).Headers(now)
	assert.Equal(t, "5", allowed[HeaderLimit])
	assert.Equal(t, "2", allowed[HeaderRemaining])
	assert.Equal(t, strconv.FormatInt(reset.Unix(), 10), allowed[HeaderReset])
	assert.NotContains(t, allowed, HeaderRetryAfter)

	rejected := (&Result{OK: false, Limit: 5, Remaining: 0, ResetAt: reset}).Headers(now)
	assert.Equal(t, "30", rejected[HeaderRetryAfter])

	assert.Equal(t, "1", RetryAfterSeconds(0))
	assert.Equal(t, "2", RetryAfterSeconds(1500*time.Millisecond))
}
