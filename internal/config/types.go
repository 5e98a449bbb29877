package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Database       DatabaseConfig       `yaml:"database"`
	Stripe         StripeConfig         `yaml:"stripe"`
	Shopify        ShopifyConfig        `yaml:"shopify"`
	Checkout       CheckoutConfig       `yaml:"checkout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	AppURL             string   `yaml:"app_url"` // public base URL, used for OAuth redirects
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // optional key protecting /metrics (empty disables protection)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	URL  string             `yaml:"url"`
	Pool PostgresPoolConfig `yaml:"pool"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// StripeConfig holds Stripe payment provider configuration.
type StripeConfig struct {
	SecretKey     string   `yaml:"secret_key"`
	PublicKey     string   `yaml:"public_key"`
	WebhookSecret string   `yaml:"webhook_secret"`
	Timeout       Duration `yaml:"timeout"`     // per-call deadline
	MaxRetries    int      `yaml:"max_retries"` // transient-error retries per call
}

// ShopifyConfig holds Shopify platform configuration.
type ShopifyConfig struct {
	APIKey     string   `yaml:"api_key"`
	APISecret  string   `yaml:"api_secret"`
	Scopes     string   `yaml:"scopes"`
	APIVersion string   `yaml:"api_version"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

// CheckoutConfig holds split-checkout business rules.
type CheckoutConfig struct {
	SessionTTL         Duration `yaml:"session_ttl"`
	MaxCards           int      `yaml:"max_cards"`
	MinAmountCents     int64    `yaml:"min_amount_cents"`
	Currency           string   `yaml:"currency"`
	IdempotencyTTL     Duration `yaml:"idempotency_ttl"`
	OrderRetryInterval Duration `yaml:"order_retry_interval"` // scan cadence for completed transactions missing an order
}

// RateLimitConfig holds per-surface request limits.
type RateLimitConfig struct {
	WidgetPerMinute int `yaml:"widget_per_minute"` // per client IP
	AdminPerMinute  int `yaml:"admin_per_minute"`  // per shop
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled    bool                 `yaml:"enabled"`
	StripeAPI  BreakerServiceConfig `yaml:"stripe_api"`
	ShopifyAPI BreakerServiceConfig `yaml:"shopify_api"`
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // max requests in half-open state
	Interval            Duration `yaml:"interval"`             // stats reset interval in closed state
	Timeout             Duration `yaml:"timeout"`              // open state timeout before half-open
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // consecutive failures to trip
	FailureRatio        float64  `yaml:"failure_ratio"`        // failure ratio to trip, 0.0-1.0
	MinRequests         uint32   `yaml:"min_requests"`         // minimum requests before checking ratio
}
