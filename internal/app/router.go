package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpmw "github.com/mihaimyh/gofeatured/middleware/http"
)

const (
	reindexRateLimit = 5
	readyTimeout     = 2 * time.Second
)

// Router returns the HTTP routes of the service.
func (c *Container) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(c.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", c.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	r.Post("/api/billing/checkout", c.handler.Checkout)

	webhookLimit := c.config.WebhookRateLimit
	if webhookLimit <= 0 {
		webhookLimit = 300
	}
	r.With(httpmw.Middleware(httpmw.Config{
		Limiter:       c.limiter,
		Scope:         "webhook",
		Window:        time.Minute,
		Max:           webhookLimit,
		GetIdentifier: httpmw.DefaultIdentifier,
		GetRoute:      httpmw.FixedRoute("/api/billing/webhook"),
		Logger:        c.log,
	})).Method(http.MethodPost, "/api/billing/webhook", c.billing.WebhookHandler())

	r.With(httpmw.Middleware(httpmw.Config{
		Limiter:  c.limiter,
		Scope:    "reindex",
		Window:   time.Minute,
		Max:      reindexRateLimit,
		GetRoute: httpmw.FixedRoute("/api/search/reindex"),
		Logger:   c.log,
	})).Post("/api/search/reindex", c.handler.Reindex)

	return r
}

func (c *Container) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := c.Ready(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("readiness check failed")
		writeStatus(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// accessLog logs one line per request.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}
