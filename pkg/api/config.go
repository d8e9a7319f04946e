package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mihaimyh/gofeatured/pkg/billing"
	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// CheckoutCreator creates featured checkout sessions.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
}

// Reindexer rebuilds the search index.
type Reindexer interface {
	Enabled() bool
	ReindexAll(ctx context.Context) (int, error)
}

// Config holds configuration for the HTTP handlers
type Config struct {
	// Checkout creates payment sessions (required)
	Checkout CheckoutCreator

	// Search serves the reindex endpoint. If nil, reindex answers 503.
	Search Reindexer

	// ReindexSecret guards the reindex endpoint. Empty disables it.
	ReindexSecret string

	// GetPrincipal extracts the authenticated caller (required)
	GetPrincipal func(*http.Request) (Principal, bool)

	// AllowedOrigins restricts which Origin headers are used for return URLs.
	// Other origins fall back to the provider's base URL. Empty allows any.
	AllowedOrigins []string

	// OnError handles errors (auth, internal, etc.)
	// If nil, the JSON error envelope is written
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional. Defaults to featured.NoopLogger.
	Logger featured.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Checkout == nil {
		return fmt.Errorf("checkout is required")
	}
	if c.GetPrincipal == nil {
		return fmt.Errorf("getPrincipal is required")
	}
	return nil
}

// NewHandler creates the HTTP handlers with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &featured.NoopLogger{}
	}
	allowed := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return &Handler{
		config:  config,
		origins: allowed,
	}, nil
}

// Helper functions for common principal extraction patterns

// FromHeaders returns a GetPrincipal function reading the employer id and role
// from headers set by a trusted authentication proxy.
func FromHeaders(employerHeader, roleHeader string) func(*http.Request) (Principal, bool) {
	return func(r *http.Request) (Principal, bool) {
		id := strings.TrimSpace(r.Header.Get(employerHeader))
		if id == "" {
			return Principal{}, false
		}
		role := strings.TrimSpace(r.Header.Get(roleHeader))
		if role == "" {
			role = RoleEmployer
		}
		return Principal{EmployerID: id, Role: role}, true
	}
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns a GetPrincipal function reading the value stored by WithPrincipal.
func FromContext() func(*http.Request) (Principal, bool) {
	return func(r *http.Request) (Principal, bool) {
		p, ok := r.Context().Value(principalKey{}).(Principal)
		if !ok || p.EmployerID == "" {
			return Principal{}, false
		}
		return p, true
	}
}
