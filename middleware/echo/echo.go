// Package echo provides Echo middleware for fixed-window rate limiting
package echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

// IdentifierExtractor identifies the caller from an Echo context
type IdentifierExtractor func(c echo.Context) string

// RouteExtractor names the limited route
type RouteExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Limiter counts requests (required)
	Limiter ratelimit.Checker

	// Scope prefixes every bucket key. Default: "api"
	Scope string

	// Window and Max bound requests per identifier and route (required)
	Window time.Duration
	Max    int

	// GetIdentifier identifies the caller. Default: the client IP
	GetIdentifier IdentifierExtractor

	// GetRoute names the route. Default: the matched route pattern
	GetRoute RouteExtractor

	// OnRateLimitExceeded is called when the window is exhausted
	// If nil, uses default response: 429 JSON error envelope
	OnRateLimitExceeded func(c echo.Context, res *ratelimit.Result) error

	// OnError is called when the limiter fails. A nil return lets the request
	// through. If OnError is nil, the request is allowed.
	OnError func(c echo.Context, err error) error

	// Logger is optional
	Logger featured.Logger
}

// Middleware creates an Echo middleware that enforces the rate limit
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Limiter == nil {
		panic("gofeatured/echo: Config.Limiter is required")
	}
	if cfg.Window <= 0 || cfg.Max <= 0 {
		panic("gofeatured/echo: Config.Window and Config.Max must be positive")
	}

	// Set defaults
	if cfg.Scope == "" {
		cfg.Scope = "api"
	}
	if cfg.GetIdentifier == nil {
		cfg.GetIdentifier = FromIP()
	}
	if cfg.GetRoute == nil {
		cfg.GetRoute = FromRoute()
	}
	if cfg.Logger == nil {
		cfg.Logger = &featured.NoopLogger{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ratelimit.Key(cfg.Scope, cfg.GetIdentifier(c), cfg.GetRoute(c))

			res, err := cfg.Limiter.Check(c.Request().Context(), key, cfg.Window, cfg.Max)
			if err != nil {
				if cfg.OnError != nil {
					if rejectErr := cfg.OnError(c, err); rejectErr != nil {
						return rejectErr
					}
				} else {
					cfg.Logger.Warn("rate limit check failed, allowing request",
						featured.Field{Key: "key", Value: key},
						featured.Field{Key: "error", Value: err},
					)
				}
				return next(c)
			}

			for k, v := range res.Headers(time.Now()) {
				c.Response().Header().Set(k, v)
			}
			if !res.OK {
				if cfg.OnRateLimitExceeded != nil {
					return cfg.OnRateLimitExceeded(c, res)
				}
				return defaultRateLimitExceeded(c, res)
			}

			return next(c)
		}
	}
}

func defaultRateLimitExceeded(c echo.Context, res *ratelimit.Result) error {
	return c.JSON(http.StatusTooManyRequests, featured.NewErrorResponse(featured.ErrRateLimited.WithResetAt(res.ResetAt)))
}

// Convenience extractors for the identifier

// FromIP identifies callers by client IP
func FromIP() IdentifierExtractor {
	return func(c echo.Context) string {
		return ratelimit.Identifier("", c.Request())
	}
}

// FromContext returns an IdentifierExtractor that uses the user id stored
// under key by an auth middleware (c.Set), falling back to the client IP
func FromContext(key string) IdentifierExtractor {
	return func(c echo.Context) string {
		userID, _ := c.Get(key).(string)
		return ratelimit.Identifier(userID, c.Request())
	}
}

// FromHeader returns an IdentifierExtractor for an authenticated id header
func FromHeader(headerName string) IdentifierExtractor {
	return func(c echo.Context) string {
		return ratelimit.Identifier(c.Request().Header.Get(headerName), c.Request())
	}
}

// Convenience extractors for the route

// FromRoute names the route by its registered pattern, or the path when unmatched
func FromRoute() RouteExtractor {
	return func(c echo.Context) string {
		if p := c.Path(); p != "" {
			return p
		}
		return c.Request().URL.Path
	}
}

// FixedRoute returns a RouteExtractor that always returns route
func FixedRoute(route string) RouteExtractor {
	return func(echo.Context) string {
		return route
	}
}
