// Package http provides net/http middleware for fixed-window rate limiting
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

// IdentifierExtractor identifies the caller, e.g. "user:42" or "ip:10.0.0.1"
type IdentifierExtractor func(r *http.Request) string

// RouteExtractor names the limited route
type RouteExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Limiter counts requests (required)
	Limiter ratelimit.Checker

	// Scope prefixes every bucket key. Default: "api"
	Scope string

	// Window and Max bound requests per identifier and route (required)
	Window time.Duration
	Max    int

	// GetIdentifier identifies the caller
	// Default: the authenticated user from WithUserID, else the client IP
	GetIdentifier IdentifierExtractor

	// GetRoute names the route. Default: the request path
	GetRoute RouteExtractor

	// OnRateLimitExceeded is called when the window is exhausted
	// If nil, returns 429 with the JSON error envelope
	OnRateLimitExceeded func(w http.ResponseWriter, r *http.Request, res *ratelimit.Result)

	// OnError is called when the limiter fails. If nil, the request is allowed
	OnError func(w http.ResponseWriter, r *http.Request, err error) bool

	// Logger is optional
	Logger featured.Logger
}

// Middleware creates an HTTP middleware that enforces the rate limit
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Limiter == nil {
		panic("gofeatured/http: Config.Limiter is required")
	}
	if config.Window <= 0 || config.Max <= 0 {
		panic("gofeatured/http: Config.Window and Config.Max must be positive")
	}
	if config.Scope == "" {
		config.Scope = "api"
	}
	if config.GetIdentifier == nil {
		config.GetIdentifier = DefaultIdentifier
	}
	if config.GetRoute == nil {
		config.GetRoute = func(r *http.Request) string { return r.URL.Path }
	}
	if config.Logger == nil {
		config.Logger = &featured.NoopLogger{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.Key(config.Scope, config.GetIdentifier(r), config.GetRoute(r))

			res, err := config.Limiter.Check(r.Context(), key, config.Window, config.Max)
			if err != nil {
				if config.OnError != nil {
					if !config.OnError(w, r, err) {
						return
					}
				} else {
					config.Logger.Warn("rate limit check failed, allowing request",
						featured.Field{Key: "key", Value: key},
						featured.Field{Key: "error", Value: err},
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			for k, v := range res.Headers(time.Now()) {
				w.Header().Set(k, v)
			}
			if !res.OK {
				if config.OnRateLimitExceeded != nil {
					config.OnRateLimitExceeded(w, r, res)
				} else {
					WriteRateLimited(w, res)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that enforces the rate limit (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

// WriteRateLimited writes the 429 JSON error envelope for res
func WriteRateLimited(w http.ResponseWriter, res *ratelimit.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(featured.NewErrorResponse(featured.ErrRateLimited.WithResetAt(res.ResetAt)))
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "ratelimit:userID"
)

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// DefaultIdentifier uses the user id stored by WithUserID, else the client IP
func DefaultIdentifier(r *http.Request) string {
	userID, _ := r.Context().Value(UserIDKey).(string)
	return ratelimit.Identifier(userID, r)
}

// FromHeader returns an IdentifierExtractor for an authenticated id header,
// falling back to the client IP
func FromHeader(headerName string) IdentifierExtractor {
	return func(r *http.Request) string {
		return ratelimit.Identifier(r.Header.Get(headerName), r)
	}
}

// FixedRoute returns a RouteExtractor that always returns route
func FixedRoute(route string) RouteExtractor {
	return func(*http.Request) string {
		return route
	}
}
