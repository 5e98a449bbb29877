// Package httpserver exposes the widget, admin, OAuth, and webhook routes
// over chi with the shared middleware stack.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/splitpay/server/internal/auth"
	"github.com/splitpay/server/internal/checkout"
	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/idempotency"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/metrics"
	shopifysvc "github.com/splitpay/server/internal/shopify"
	"github.com/splitpay/server/internal/storage"
	stripesvc "github.com/splitpay/server/internal/stripe"
	"github.com/splitpay/server/internal/webhooks"
)

var serverStartTime = time.Now()

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config           *config.Config
	Checkout         *checkout.Service
	Store            storage.Store
	Stripe           *stripesvc.Client
	Shopify          *shopifysvc.Client
	StripeWebhooks   *webhooks.StripeProcessor
	ShopifyWebhooks  *webhooks.ShopifyProcessor
	IdempotencyStore idempotency.Store
	Tokens           *auth.Issuer
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg              *config.Config
	checkout         *checkout.Service
	store            storage.Store
	stripe           *stripesvc.Client
	shopify          *shopifysvc.Client
	stripeWebhooks   *webhooks.StripeProcessor
	shopifyWebhooks  *webhooks.ShopifyProcessor
	idempotencyStore idempotency.Store
	tokens           *auth.Issuer
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// New builds the HTTP server with the configured router.
func New(deps Deps) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: newHandlers(deps),
		httpServer: &http.Server{
			Addr:         deps.Config.Server.Address,
			ReadTimeout:  deps.Config.Server.ReadTimeout.Duration,
			WriteTimeout: deps.Config.Server.WriteTimeout.Duration,
			IdleTimeout:  deps.Config.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	ConfigureRouter(router, deps)
	return s
}

func newHandlers(deps Deps) handlers {
	return handlers{
		cfg:              deps.Config,
		checkout:         deps.Checkout,
		store:            deps.Store,
		stripe:           deps.Stripe,
		shopify:          deps.Shopify,
		stripeWebhooks:   deps.StripeWebhooks,
		shopifyWebhooks:  deps.ShopifyWebhooks,
		idempotencyStore: deps.IdempotencyStore,
		tokens:           deps.Tokens,
		metrics:          deps.Metrics,
		logger:           deps.Logger,
	}
}

// ConfigureRouter attaches all routes to an existing router.
func ConfigureRouter(router chi.Router, deps Deps) {
	if router == nil {
		return
	}
	handler := newHandlers(deps)
	cfg := deps.Config

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(deps.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// Lightweight endpoints: health and metrics.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/healthz", handler.health)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle("/metrics", promhttp.Handler())
	})

	idempotencyMW := idempotency.Middleware(deps.IdempotencyStore, cfg.Checkout.IdempotencyTTL.Duration)

	// Widget surface: called from the buyer's browser, rate limited per IP.
	// complete-checkout fans out to the card provider, so it gets the long
	// timeout and idempotency replay.
	router.Route("/api/widget", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if cfg.RateLimit.WidgetPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit.WidgetPerMinute, time.Minute))
		}
		r.Post("/init", handler.widgetInit)
		r.Post("/create-payment-intent", handler.widgetCreatePaymentIntent)
		r.Post("/remove-payment", handler.widgetRemovePayment)
		r.With(idempotencyMW).Post("/complete-checkout", handler.widgetCompleteCheckout)
	})

	// Admin surface: session-token auth, rate limited per shop.
	router.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(sessionAuth(deps.Tokens))
		if cfg.RateLimit.AdminPerMinute > 0 {
			r.Use(httprate.Limit(cfg.RateLimit.AdminPerMinute, time.Minute,
				httprate.WithKeyFuncs(shopRateKey)))
		}
		r.Get("/stats", handler.adminStats)
		r.Get("/transactions", handler.adminListTransactions)
		r.Get("/transactions/{id}", handler.adminGetTransaction)
		r.With(idempotencyMW).Post("/refund", handler.adminRefund)
		r.Get("/stores", handler.adminStore)
		r.Put("/settings", handler.adminUpdateSettings)
	})

	// OAuth installation flow.
	router.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/install", handler.authInstall)
		r.Get("/callback", handler.authCallback)
	})

	// Webhooks verify their own signatures and must see the raw body.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/api/webhooks/shopify", handler.shopifyWebhook)
		r.Post("/api/stripe/webhook", handler.stripeWebhook)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
