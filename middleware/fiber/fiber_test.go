package fiber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, time.Duration, int) (*ratelimit.Result, error) {
	return nil, errors.New("redis down")
}

func newLimiter() *ratelimit.Limiter {
	now := time.Now()
	return ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.WithClock(func() time.Time { return now }))
}

func setupApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/jobs/:id", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestMiddleware_Limits(t *testing.T) {
	app := setupApp(Config{Limiter: newLimiter(), Window: time.Minute, Max: 2})

	for i := 0; i < 2; i++ {
		resp := do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/1", http.NoBody))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get(ratelimit.HeaderLimit))
	}

	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/1", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(ratelimit.HeaderRetryAfter))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body featured.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)

	// another path is another bucket
	resp = do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/2", http.NoBody))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddleware_FromHeader(t *testing.T) {
	app := setupApp(Config{Limiter: newLimiter(), Window: time.Minute, Max: 1, GetIdentifier: FromHeader("X-User-ID")})

	for _, user := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/jobs/1", http.NoBody)
		req.Header.Set("X-User-ID", user)
		assert.Equal(t, http.StatusOK, do(t, app, req).StatusCode, user)
	}
}

func TestMiddleware_LimiterError(t *testing.T) {
	app := setupApp(Config{Limiter: failingLimiter{}, Window: time.Minute, Max: 1})
	assert.Equal(t, http.StatusOK, do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/1", http.NoBody)).StatusCode)

	app = setupApp(Config{
		Limiter: failingLimiter{},
		Window:  time.Minute,
		Max:     1,
		OnError: func(c *fiber.Ctx, _ error) error {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		},
	})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/1", http.NoBody)).StatusCode)
}

func TestMiddleware_CustomRejection(t *testing.T) {
	app := setupApp(Config{
		Limiter:  newLimiter(),
		Window:   time.Minute,
		Max:      1,
		GetRoute: FixedRoute("all"),
		OnRateLimitExceeded: func(c *fiber.Ctx, _ *ratelimit.Result) error {
			return c.Status(fiber.StatusTeapot).SendString("slow down")
		},
	})

	do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/1", http.NoBody))
	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/jobs/2", http.NoBody))
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestMiddleware_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { Middleware(Config{Window: time.Minute, Max: 1}) })
	assert.Panics(t, func() { Middleware(Config{Limiter: newLimiter()}) })
}
