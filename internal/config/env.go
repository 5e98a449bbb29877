package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration. The names
// follow the deployment contract: unprefixed, one variable per secret.
func (c *Config) applyEnvOverrides() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + strings.TrimPrefix(port, ":")
	}
	setIfEnv(&c.Server.AppURL, "APP_URL")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "ADMIN_METRICS_API_KEY")
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.CORSAllowedOrigins = splitAndTrim(origins)
	}

	// Logging
	setIfEnv(&c.Logging.Level, "LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "ENVIRONMENT")

	// Database
	setIfEnv(&c.Database.URL, "DATABASE_URL")
	setIntIfEnv(&c.Database.Pool.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setIntIfEnv(&c.Database.Pool.MaxIdleConns, "DATABASE_MAX_IDLE_CONNS")
	setDurationIfEnv(&c.Database.Pool.ConnMaxLifetime, "DATABASE_CONN_MAX_LIFETIME")

	// Stripe
	setIfEnv(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setIfEnv(&c.Stripe.PublicKey, "STRIPE_PUBLIC_KEY")
	setIfEnv(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setDurationIfEnv(&c.Stripe.Timeout, "STRIPE_TIMEOUT")

	// Shopify
	setIfEnv(&c.Shopify.APIKey, "SHOPIFY_API_KEY")
	setIfEnv(&c.Shopify.APISecret, "SHOPIFY_API_SECRET")
	setIfEnv(&c.Shopify.Scopes, "SHOPIFY_SCOPES")
	setIfEnv(&c.Shopify.APIVersion, "SHOPIFY_API_VERSION")
	setDurationIfEnv(&c.Shopify.Timeout, "SHOPIFY_TIMEOUT")

	// Checkout rules
	setDurationIfEnv(&c.Checkout.SessionTTL, "CHECKOUT_SESSION_TTL")
	setIntIfEnv(&c.Checkout.MaxCards, "CHECKOUT_MAX_CARDS")
	setInt64IfEnv(&c.Checkout.MinAmountCents, "CHECKOUT_MIN_AMOUNT_CENTS")
	setDurationIfEnv(&c.Checkout.OrderRetryInterval, "CHECKOUT_ORDER_RETRY_INTERVAL")

	// Rate limits
	setIntIfEnv(&c.RateLimit.WidgetPerMinute, "RATE_LIMIT_WIDGET_PER_MINUTE")
	setIntIfEnv(&c.RateLimit.AdminPerMinute, "RATE_LIMIT_ADMIN_PER_MINUTE")

	// Circuit breaker
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setInt64IfEnv sets an int64 pointer from an environment variable.
func setInt64IfEnv(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
