// Package gin provides Gin middleware for fixed-window rate limiting
package gin

import (
	"net/http"
	"time"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

// IdentifierExtractor identifies the caller from a Gin context
type IdentifierExtractor func(c *gongin.Context) string

// RouteExtractor names the limited route
type RouteExtractor func(c *gongin.Context) string

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
	OnRateLimitExceeded func(c *gongin.Context, res *ratelimit.Result)

	// OnError is called when the limiter fails. If nil, the request is allowed.
	// Call c.Abort in it to reject the request instead.
	OnError func(c *gongin.Context, err error)

	// Logger is optional
	Logger featured.Logger
}

// Middleware creates a Gin middleware that enforces the rate limit
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Limiter == nil {
		panic("gofeatured/gin: Config.Limiter is required")
	}
	if cfg.Window <= 0 || cfg.Max <= 0 {
		panic("gofeatured/gin: Config.Window and Config.Max must be positive")
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

	return func(c *gongin.Context) {
		key := ratelimit.Key(cfg.Scope, cfg.GetIdentifier(c), cfg.GetRoute(c))

		res, err := cfg.Limiter.Check(c.Request.Context(), key, cfg.Window, cfg.Max)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				cfg.Logger.Warn("rate limit check failed, allowing request",
					featured.Field{Key: "key", Value: key},
					featured.Field{Key: "error", Value: err},
				)
			}
			if !c.IsAborted() {
				c.Next()
			}
			return
		}

		for k, v := range res.Headers(time.Now()) {
			c.Header(k, v)
		}
		if !res.OK {
			if cfg.OnRateLimitExceeded != nil {
				cfg.OnRateLimitExceeded(c, res)
			} else {
				defaultRateLimitExceeded(c, res)
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

func defaultRateLimitExceeded(c *gongin.Context, res *ratelimit.Result) {
	c.JSON(http.StatusTooManyRequests, featured.NewErrorResponse(featured.ErrRateLimited.WithResetAt(res.ResetAt)))
}

// Convenience extractors for the identifier

// FromIP identifies callers by client IP
func FromIP() IdentifierExtractor {
	return func(c *gongin.Context) string {
		return ratelimit.Identifier("", c.Request)
	}
}

// FromContext returns an IdentifierExtractor that uses the user id stored
// under key by an auth middleware, falling back to the client IP.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In rate limit config:
//	GetIdentifier: gin.FromContext("UserID")
func FromContext(key string) IdentifierExtractor {
	return func(c *gongin.Context) string {
		return ratelimit.Identifier(c.GetString(key), c.Request)
	}
}

// FromHeader returns an IdentifierExtractor for an authenticated id header
func FromHeader(headerName string) IdentifierExtractor {
	return func(c *gongin.Context) string {
		return ratelimit.Identifier(c.GetHeader(headerName), c.Request)
	}
}

// Convenience extractors for the route

// FromRoute names the route by its registered pattern, or the path when unmatched
func FromRoute() RouteExtractor {
	return func(c *gongin.Context) string {
		if p := c.FullPath(); p != "" {
			return p
		}
		return c.Request.URL.Path
	}
}

// FixedRoute returns a RouteExtractor that always returns route
func FixedRoute(route string) RouteExtractor {
	return func(*gongin.Context) string {
		return route
	}
}
