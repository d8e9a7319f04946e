package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gofeatured/internal/config"
	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/storage/memory"
)

const (
	testWebhookSecret = "whsec_app_test"
	testReindexSecret = "reindex-secret"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerHost:          "127.0.0.1",
		ServerPort:          0,
		BaseURL:             "http://localhost:8080",
		StripeWebhookSecret: testWebhookSecret,
		FeaturedPriceCents:  4900,
		FeaturedCurrency:    "usd",
		FeaturedDuration:    7 * 24 * time.Hour,
		CheckoutRateLimit:   5,
		CheckoutRateWindow:  time.Minute,
		WebhookRateLimit:    100,
		MeiliIndex:          "jobs",
		ReindexSecret:       testReindexSecret,
		MetricsNamespace:    "apptest",
		FanoutInterval:      time.Second,
		FanoutMaxAttempts:   3,
		AuthEmployerHeader:  "X-Employer-ID",
		AuthRoleHeader:      "X-Employer-Role",
	}
}

func newTestContainer(t *testing.T) (*Container, *memory.Storage) {
	t.Helper()
	c, err := NewContainer(context.Background(), testConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	store, ok := c.Store().(*memory.Storage)
	require.True(t, ok, "expected in-memory store without DATABASE_URL")
	store.PutJob(featured.Job{
		ID:         "job-1",
		EmployerID: "emp-1",
		Title:      "Backend Engineer",
		IsActive:   true,
		CreatedAt:  time.Now().Add(-time.Hour),
	})
	return c, store
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp featured.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp.Error.Code
}

func TestNewContainer_InMemoryDefaults(t *testing.T) {
	c, _ := newTestContainer(t)

	assert.NotNil(t, c.Dispatcher())
	assert.False(t, c.Search().Enabled())
	assert.NoError(t, c.Ready(context.Background()))
	assert.Same(t, c.Config(), c.config)
}

func TestRouter_Health(t *testing.T) {
	c, _ := newTestContainer(t)
	h := c.Router()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	c, _ := newTestContainer(t)

	rec := do(t, c.Router(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_Checkout(t *testing.T) {
	c, _ := newTestContainer(t)
	h := c.Router()

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", strings.NewReader(`{"job_id":"job-1"}`))
		rec := do(t, h, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec.Body))
	})

	t.Run("payment backend not configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", strings.NewReader(`{"job_id":"job-1"}`))
		req.Header.Set("X-Employer-ID", "emp-1")
		rec := do(t, h, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "STRIPE_NOT_CONFIGURED", errorCode(t, rec.Body))
	})
}

func TestRouter_WebhookFulfillsAndFansOut(t *testing.T) {
	c, store := newTestContainer(t)
	h := c.Router()

	payload, err := json.Marshal(map[string]interface{}{
		"id":      "evt_app_1",
		"object":  "event",
		"type":    "checkout.session.completed",
		"created": time.Now().Unix(),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             "cs_app_1",
				"object":         "checkout.session",
				"payment_status": "paid",
				"metadata": map[string]string{
					"employer_id": "emp-1",
					"job_id":      "job-1",
					"type":        "featured",
				},
			},
		},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	before := time.Now()
	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))

	got, ok := store.GetFeaturedRecord(context.Background(), "job-1")
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(7*24*time.Hour), got.FeaturedUntil, time.Minute)

	assert.Equal(t, 1, c.Dispatcher().ProcessPending(context.Background()))
	assert.Equal(t, 0, c.Dispatcher().ProcessPending(context.Background()))
}

func TestRouter_WebhookRejectsBadSignature(t *testing.T) {
	c, store := newTestContainer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/webhook", strings.NewReader(`{"id":"evt_x"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := do(t, c.Router(), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SIGNATURE", errorCode(t, rec.Body))
	_, ok := store.GetFeaturedRecord(context.Background(), "job-1")
	assert.False(t, ok)
}

func TestRouter_Reindex(t *testing.T) {
	c, _ := newTestContainer(t)
	h := c.Router()

	tests := []struct {
		name       string
		secret     string
		wantStatus int
		wantCode   string
	}{
		{name: "missing secret", secret: "", wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "wrong secret", secret: "nope", wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "search not configured", secret: testReindexSecret, wantStatus: http.StatusServiceUnavailable, wantCode: "SEARCH_NOT_CONFIGURED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/search/reindex", nil)
			if tt.secret != "" {
				req.Header.Set("X-Reindex-Secret", tt.secret)
			}
			rec := do(t, h, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec.Body))
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{level: "debug", want: zerolog.DebugLevel},
		{level: "WARN", want: zerolog.WarnLevel},
		{level: "", want: zerolog.InfoLevel},
		{level: "bogus", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, NewLogger(tt.level, "json").GetLevel())
		})
	}
}
