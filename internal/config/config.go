package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in defaults without reading a file or the
// environment. Callers still need to set the required credentials.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Pool: PostgresPoolConfig{
				MaxOpenConns:    20,
				MaxIdleConns:    5,
				ConnMaxLifetime: Duration{Duration: 5 * time.Minute},
			},
		},
		Stripe: StripeConfig{
			Timeout:    Duration{Duration: 30 * time.Second},
			MaxRetries: 2,
		},
		Shopify: ShopifyConfig{
			APIVersion: "2024-01",
			Scopes:     "read_checkouts,write_orders",
			Timeout:    Duration{Duration: 15 * time.Second},
			MaxRetries: 2,
		},
		Checkout: CheckoutConfig{
			SessionTTL:         Duration{Duration: 30 * time.Minute},
			MaxCards:           5,
			MinAmountCents:     100,
			Currency:           "USD",
			IdempotencyTTL:     Duration{Duration: 24 * time.Hour},
			OrderRetryInterval: Duration{Duration: 5 * time.Minute},
		},
		RateLimit: RateLimitConfig{
			WidgetPerMinute: 60,
			AdminPerMinute:  100,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			StripeAPI: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			ShopifyAPI: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// finalize validates required settings and normalizes derived values.
func (c *Config) finalize() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (DATABASE_URL)")
	}
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required (STRIPE_SECRET_KEY)")
	}
	if c.Shopify.APISecret == "" {
		return fmt.Errorf("shopify api secret is required (SHOPIFY_API_SECRET)")
	}
	if c.Checkout.MaxCards < 2 || c.Checkout.MaxCards > 5 {
		return fmt.Errorf("checkout max_cards must be within [2, 5], got %d", c.Checkout.MaxCards)
	}
	if c.Checkout.MinAmountCents < 1 {
		return fmt.Errorf("checkout min_amount_cents must be positive, got %d", c.Checkout.MinAmountCents)
	}
	return nil
}
