package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/splitpay_test?sslmode=disable")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("SHOPIFY_API_SECRET", "shpss_test_secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Checkout.MaxCards != 5 {
		t.Errorf("Checkout.MaxCards = %d, want 5", cfg.Checkout.MaxCards)
	}
	if cfg.Checkout.MinAmountCents != 100 {
		t.Errorf("Checkout.MinAmountCents = %d, want 100", cfg.Checkout.MinAmountCents)
	}
	if cfg.Checkout.SessionTTL.Duration != 30*time.Minute {
		t.Errorf("Checkout.SessionTTL = %v, want 30m", cfg.Checkout.SessionTTL.Duration)
	}
	if cfg.RateLimit.WidgetPerMinute != 60 || cfg.RateLimit.AdminPerMinute != 100 {
		t.Errorf("rate limits = %d/%d, want 60/100",
			cfg.RateLimit.WidgetPerMinute, cfg.RateLimit.AdminPerMinute)
	}
	if !cfg.CircuitBreaker.Enabled {
		t.Error("circuit breaker should default to enabled")
	}
	if cfg.Database.Pool.MaxOpenConns != 20 {
		t.Errorf("Database.Pool.MaxOpenConns = %d, want 20", cfg.Database.Pool.MaxOpenConns)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_URL", "https://splitpay.example.com")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("CHECKOUT_MAX_CARDS", "3")
	t.Setenv("CHECKOUT_SESSION_TTL", "10m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("Server.Address = %q, want :9090", cfg.Server.Address)
	}
	if cfg.Server.AppURL != "https://splitpay.example.com" {
		t.Errorf("Server.AppURL = %q", cfg.Server.AppURL)
	}
	if cfg.Stripe.WebhookSecret != "whsec_abc" {
		t.Errorf("Stripe.WebhookSecret = %q", cfg.Stripe.WebhookSecret)
	}
	if cfg.Checkout.MaxCards != 3 {
		t.Errorf("Checkout.MaxCards = %d, want 3", cfg.Checkout.MaxCards)
	}
	if cfg.Checkout.SessionTTL.Duration != 10*time.Minute {
		t.Errorf("Checkout.SessionTTL = %v, want 10m", cfg.Checkout.SessionTTL.Duration)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	setRequiredEnv(t)

	yaml := `
server:
  address: ":7000"
checkout:
  max_cards: 4
  min_amount_cents: 250
  session_ttl: 20m
shopify:
  api_version: "2024-04"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":7000" {
		t.Errorf("Server.Address = %q, want :7000", cfg.Server.Address)
	}
	if cfg.Checkout.MaxCards != 4 {
		t.Errorf("Checkout.MaxCards = %d, want 4", cfg.Checkout.MaxCards)
	}
	if cfg.Checkout.MinAmountCents != 250 {
		t.Errorf("Checkout.MinAmountCents = %d, want 250", cfg.Checkout.MinAmountCents)
	}
	if cfg.Checkout.SessionTTL.Duration != 20*time.Minute {
		t.Errorf("Checkout.SessionTTL = %v, want 20m", cfg.Checkout.SessionTTL.Duration)
	}
	if cfg.Shopify.APIVersion != "2024-04" {
		t.Errorf("Shopify.APIVersion = %q, want 2024-04", cfg.Shopify.APIVersion)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "missing database url", unset: "DATABASE_URL"},
		{name: "missing stripe secret", unset: "STRIPE_SECRET_KEY"},
		{name: "missing shopify secret", unset: "SHOPIFY_API_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")
			if _, err := Load(""); err == nil {
				t.Fatalf("Load succeeded without %s", tt.unset)
			}
		})
	}
}

func TestLoadRejectsBadMaxCards(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHECKOUT_MAX_CARDS", "9")
	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted max_cards out of range")
	}
}
