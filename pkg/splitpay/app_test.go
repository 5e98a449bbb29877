package splitpay

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/storage"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.AppURL = "https://splitpay.example.com"
	cfg.Shopify.APIKey = "test_api_key"
	cfg.Shopify.APISecret = "shpss_test_secret"
	cfg.Stripe.SecretKey = "sk_test_123"
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(testConfig(),
		WithStore(storage.NewMemoryStore()),
		WithRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewAppRequiresConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}

func TestAppServesRoutes(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Admin routes are wired and protected.
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The OAuth entry point builds the consent redirect locally.
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/install?shop=demo.myshopify.com", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "demo.myshopify.com/admin/oauth/authorize")
}

func TestAppRegistersRoutesOnProvidedRouter(t *testing.T) {
	app := newTestApp(t)
	assert.NotNil(t, app.Router())
	assert.NotNil(t, app.Checkout)
	assert.NotNil(t, app.Tokens)
}
