// Package splitpay assembles the split-payment services behind a single
// http.Handler, for the standalone server and for embedding into a larger
// router.
package splitpay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/splitpay/server/internal/auth"
	"github.com/splitpay/server/internal/checkout"
	"github.com/splitpay/server/internal/circuitbreaker"
	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/httpserver"
	"github.com/splitpay/server/internal/idempotency"
	"github.com/splitpay/server/internal/lifecycle"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/metrics"
	"github.com/splitpay/server/internal/session"
	shopifysvc "github.com/splitpay/server/internal/shopify"
	"github.com/splitpay/server/internal/storage"
	stripesvc "github.com/splitpay/server/internal/stripe"
	"github.com/splitpay/server/internal/webhooks"
)

// App wires the split-payment components for reuse or standalone serving.
type App struct {
	Config           *config.Config
	Store            storage.Store
	Checkout         *checkout.Service
	Stripe           *stripesvc.Client
	Shopify          *shopifysvc.Client
	Sessions         *session.Store
	IdempotencyStore *idempotency.MemoryStore
	Tokens           *auth.Issuer
	Metrics          *metrics.Metrics

	router          chi.Router
	resourceManager *lifecycle.Manager
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store    storage.Store
	registry prometheus.Registerer
	router   chi.Router
}

// WithStore sets a custom storage backend.
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRegistry sets the Prometheus registry metrics are registered on.
// Embedders with their own registry use this to avoid collisions on the
// default one.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithRouter registers routes onto an existing chi.Router.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// NewApp assembles the split-payment services.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("splitpay: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	app := &App{
		Config:          cfg,
		resourceManager: lifecycle.NewManager(),
	}

	backingStore := optState.store
	if backingStore == nil {
		memStore := storage.NewMemoryStore()
		app.resourceManager.Register("storage", memStore)
		log.Warn().Msg("splitpay: defaulting to in-memory store, do not use this backend in production")
		backingStore = memStore
	}
	// Shop rows are read on every widget and admin request; keep that
	// lookup off the database between settings changes.
	app.Store = storage.NewShopCachingStore(backingStore, 30*time.Second)

	registry := optState.registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	app.Metrics = metrics.New(registry)

	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)
	app.Stripe = stripesvc.NewClient(cfg.Stripe, breakers, app.Metrics)
	app.Shopify = shopifysvc.NewClient(cfg.Shopify, breakers, app.Metrics)

	app.Sessions = session.NewStore(cfg.Checkout.SessionTTL.Duration)
	app.Checkout = checkout.NewService(cfg.Checkout, app.Store, app.Stripe, app.Shopify, app.Sessions, app.Metrics)

	app.IdempotencyStore = idempotency.NewMemoryStore()
	app.resourceManager.RegisterFunc("idempotency-store", func() error {
		app.IdempotencyStore.Stop()
		return nil
	})

	app.Tokens = auth.NewIssuer(cfg.Shopify.APISecret, 24*time.Hour)

	if optState.router != nil {
		app.router = optState.router
	} else {
		app.router = chi.NewRouter()
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "splitpay",
		Environment: cfg.Logging.Environment,
	})

	httpserver.ConfigureRouter(app.router, httpserver.Deps{
		Config:           cfg,
		Checkout:         app.Checkout,
		Store:            app.Store,
		Stripe:           app.Stripe,
		Shopify:          app.Shopify,
		StripeWebhooks:   webhooks.NewStripeProcessor(app.Store, app.Metrics),
		ShopifyWebhooks:  webhooks.NewShopifyProcessor(app.Store, app.Metrics),
		IdempotencyStore: app.IdempotencyStore,
		Tokens:           app.Tokens,
		Metrics:          app.Metrics,
		Logger:           appLogger,
	})

	return app, nil
}

// Router returns the chi router with all routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// RunOrderReconciler retries platform order submission for settled
// transactions until ctx is canceled. Run it in its own goroutine.
func (a *App) RunOrderReconciler(ctx context.Context) {
	interval := a.Config.Checkout.OrderRetryInterval.Duration
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	// Catch transactions that completed without an order before the last
	// shutdown, then keep scanning on the interval.
	a.Checkout.RetryPendingOrders(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Checkout.RetryPendingOrders(ctx)
		}
	}
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// Config is an exported alias of the internal configuration struct for
// embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for embedding consumers.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
