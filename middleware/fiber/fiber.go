// Package fiber provides Fiber middleware for fixed-window rate limiting
package fiber

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

// IdentifierExtractor identifies the caller from a Fiber context
type IdentifierExtractor func(c *fiber.Ctx) string

// RouteExtractor names the limited route
type RouteExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Limiter counts requests (required)
	Limiter ratelimit.Checker

	// Scope prefixes every bucket key. Default: "api"
	Scope string

	// Window and Max bound requests per identifier and route (required)
	Window time.Duration
	Max    int

	// GetIdentifier identifies the caller. Default: the client IP as
	// resolved by Fiber (honours fiber.Config.ProxyHeader)
	GetIdentifier IdentifierExtractor

	// GetRoute names the route. Default: the request path
	GetRoute RouteExtractor

	// OnRateLimitExceeded is called when the window is exhausted
	// If nil, uses default response: 429 JSON error envelope
	OnRateLimitExceeded func(c *fiber.Ctx, res *ratelimit.Result) error

	// OnError is called when the limiter fails. A nil return lets the request
	// through. If OnError is nil, the request is allowed.
	OnError func(c *fiber.Ctx, err error) error

	// Logger is optional
	Logger featured.Logger
}

// Middleware creates a Fiber middleware that enforces the rate limit
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Limiter == nil {
		panic("gofeatured/fiber: Config.Limiter is required")
	}
	if cfg.Window <= 0 || cfg.Max <= 0 {
		panic("gofeatured/fiber: Config.Window and Config.Max must be positive")
	}

	// Set defaults
	if cfg.Scope == "" {
		cfg.Scope = "api"
	}
	if cfg.GetIdentifier == nil {
		cfg.GetIdentifier = FromIP()
	}
	if cfg.GetRoute == nil {
		cfg.GetRoute = func(c *fiber.Ctx) string { return c.Path() }
	}
	if cfg.Logger == nil {
		cfg.Logger = &featured.NoopLogger{}
	}

	return func(c *fiber.Ctx) error {
		key := ratelimit.Key(cfg.Scope, cfg.GetIdentifier(c), cfg.GetRoute(c))

		res, err := cfg.Limiter.Check(c.UserContext(), key, cfg.Window, cfg.Max)
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
			return c.Next()
		}

		for k, v := range res.Headers(time.Now()) {
			c.Set(k, v)
		}
		if !res.OK {
			if cfg.OnRateLimitExceeded != nil {
				return cfg.OnRateLimitExceeded(c, res)
			}
			return defaultRateLimitExceeded(c, res)
		}

		return c.Next()
	}
}

func defaultRateLimitExceeded(c *fiber.Ctx, res *ratelimit.Result) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(featured.NewErrorResponse(featured.ErrRateLimited.WithResetAt(res.ResetAt)))
}

// Convenience extractors for the identifier

// FromIP identifies callers by client IP
func FromIP() IdentifierExtractor {
	return func(c *fiber.Ctx) string {
		return "ip:" + c.IP()
	}
}

// FromLocals returns an IdentifierExtractor that uses the user id stored in
// c.Locals(key) by an auth middleware, falling back to the client IP
func FromLocals(key string) IdentifierExtractor {
	return func(c *fiber.Ctx) string {
		if userID, ok := c.Locals(key).(string); ok && userID != "" {
			return "user:" + userID
		}
		return "ip:" + c.IP()
	}
}

// FromHeader returns an IdentifierExtractor for an authenticated id header
func FromHeader(headerName string) IdentifierExtractor {
	return func(c *fiber.Ctx) string {
		if userID := c.Get(headerName); userID != "" {
			return "user:" + userID
		}
		return "ip:" + c.IP()
	}
}

// Convenience extractors for the route

// FromRoute names the route by its registered pattern
func FromRoute() RouteExtractor {
	return func(c *fiber.Ctx) string {
		return c.Route().Path
	}
}

// FixedRoute returns a RouteExtractor that always returns route
func FixedRoute(route string) RouteExtractor {
	return func(*fiber.Ctx) string {
		return route
	}
}
