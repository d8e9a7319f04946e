// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// ServerHost is the host address the server will bind to.
	ServerHost string
	// ServerPort is the port number the server will listen on.
	ServerPort int
	// BaseURL builds checkout return URLs when a request carries no usable Origin.
	BaseURL string
	// AllowedOrigins is a comma-separated list of origins trusted for return URLs.
	AllowedOrigins []string
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// DatabaseURL is the PostgreSQL connection string. Empty selects the in-memory store.
	DatabaseURL string
	// DBMaxConns is the maximum number of pool connections.
	DBMaxConns int

	// RedisURL enables the distributed rate limit counter. Empty keeps it in-process.
	RedisURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	// FeaturedPriceCents and FeaturedCurrency price one featured placement.
	FeaturedPriceCents int64
	FeaturedCurrency   string
	// FeaturedDuration is the extension granted per purchase.
	FeaturedDuration time.Duration

	// CheckoutRateLimit checkout sessions per CheckoutRateWindow per caller.
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	// WebhookRateLimit requests per minute per IP on the webhook endpoint.
	WebhookRateLimit int

	MeiliHost   string
	MeiliAPIKey string
	MeiliIndex  string

	// ReindexSecret guards POST /api/search/reindex. Empty disables the endpoint.
	ReindexSecret string

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string
	// LogFormat is "json" or "console".
	LogFormat string

	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string

	// FanoutInterval is the outbox poll interval.
	FanoutInterval time.Duration
	// FanoutMaxAttempts is how many failed deliveries an event gets.
	FanoutMaxAttempts int

	// AuthEmployerHeader and AuthRoleHeader carry the principal set by the auth proxy.
	AuthEmployerHeader string
	AuthRoleHeader     string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Server configuration
		ServerHost:      env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort:      env.GetInt("SERVER_PORT", 8080),
		BaseURL:         env.GetString("BASE_URL", "http://localhost:8080"),
		AllowedOrigins:  splitList(env.GetString("ALLOWED_ORIGINS", "")),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT_SECONDS", 15, time.Second),

		// Database configuration
		DatabaseURL: env.GetString("DATABASE_URL", ""),
		DBMaxConns:  env.GetInt("DB_MAX_CONNS", 10),

		// Rate limit counter
		RedisURL: env.GetString("REDIS_URL", ""),

		// Stripe
		StripeSecretKey:     env.GetString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: env.GetString("STRIPE_WEBHOOK_SECRET", ""),

		// Featured placement
		FeaturedPriceCents: int64(env.GetInt("FEATURED_PRICE_CENTS", 4900)),
		FeaturedCurrency:   env.GetString("FEATURED_CURRENCY", "usd"),
		FeaturedDuration:   env.GetDuration("FEATURED_DURATION_DAYS", 7, 24*time.Hour),

		// Rate limiting
		CheckoutRateLimit:  env.GetInt("CHECKOUT_RATE_LIMIT", 5),
		CheckoutRateWindow: env.GetDuration("CHECKOUT_RATE_WINDOW", 60, time.Second),
		WebhookRateLimit:   env.GetInt("WEBHOOK_RATE_LIMIT", 300),

		// Search
		MeiliHost:     env.GetString("MEILI_HOST", ""),
		MeiliAPIKey:   env.GetString("MEILI_API_KEY", ""),
		MeiliIndex:    env.GetString("MEILI_INDEX", "jobs"),
		ReindexSecret: env.GetString("REINDEX_SECRET", ""),

		// Logging
		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "json"),

		// Metrics
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "gofeatured"),

		// Fan-out
		FanoutInterval:    env.GetDuration("FANOUT_INTERVAL", 5, time.Second),
		FanoutMaxAttempts: env.GetInt("FANOUT_MAX_ATTEMPTS", 10),

		// Auth
		AuthEmployerHeader: env.GetString("AUTH_EMPLOYER_HEADER", "X-Employer-ID"),
		AuthRoleHeader:     env.GetString("AUTH_ROLE_HEADER", "X-Employer-Role"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
