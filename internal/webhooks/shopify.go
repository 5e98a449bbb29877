package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/metrics"
	"github.com/splitpay/server/internal/storage"
)

// Topics this service subscribes to.
const (
	TopicAppUninstalled  = "app/uninstalled"
	TopicCustomersRedact = "customers/redact"
	TopicShopRedact      = "shop/redact"
	TopicOrdersPaid      = "orders/paid"
)

// ShopifyProcessor applies platform lifecycle and GDPR events.
type ShopifyProcessor struct {
	store   storage.Store
	metrics *metrics.Metrics
}

// NewShopifyProcessor wires the platform event handler.
func NewShopifyProcessor(store storage.Store, metricsCollector *metrics.Metrics) *ShopifyProcessor {
	return &ShopifyProcessor{store: store, metrics: metricsCollector}
}

// Process applies one verified platform event identified by its topic
// header and originating shop domain.
func (p *ShopifyProcessor) Process(ctx context.Context, topic, shopDomain string, body []byte) error {
	outcome := "ok"
	err := p.process(ctx, topic, shopDomain, body)
	if err != nil {
		outcome = "error"
	}
	if p.metrics != nil {
		p.metrics.WebhooksTotal.WithLabelValues("shopify", topic, outcome).Inc()
	}
	return err
}

func (p *ShopifyProcessor) process(ctx context.Context, topic, shopDomain string, body []byte) error {
	log := logger.FromContext(ctx)

	switch topic {
	case TopicAppUninstalled:
		if err := p.store.DeactivateShop(ctx, shopDomain); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("deactivate %s: %w", shopDomain, err)
		}
		log.Info().Str("shop", shopDomain).Msg("webhook.shopify.uninstalled")
		return nil

	case TopicCustomersRedact, TopicShopRedact:
		domain := shopDomain
		if domain == "" {
			var payload struct {
				ShopDomain string `json:"shop_domain"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return fmt.Errorf("decode redact payload: %w", err)
			}
			domain = payload.ShopDomain
		}
		shop, err := p.store.GetShopByDomain(ctx, domain)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("load shop %s: %w", domain, err)
		}
		redacted, err := p.store.RedactCustomerData(ctx, shop.ID)
		if err != nil {
			return fmt.Errorf("redact %s: %w", domain, err)
		}
		// A shop-level redact is the store's erasure request: drop the
		// access token and deactivate, same as an uninstall.
		if topic == TopicShopRedact {
			if err := p.store.DeactivateShop(ctx, domain); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("deactivate %s: %w", domain, err)
			}
		}
		log.Info().
			Str("shop", domain).
			Str("topic", topic).
			Int64("transactions", redacted).
			Msg("webhook.shopify.redacted")
		return nil

	case TopicOrdersPaid:
		// Advisory only: order state is owned by the checkout flow.
		var payload struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("decode order payload: %w", err)
		}
		log.Debug().
			Str("shop", shopDomain).
			Int64("order_id", payload.ID).
			Msg("webhook.shopify.order_paid")
		return nil

	default:
		log.Debug().Str("topic", topic).Str("shop", shopDomain).Msg("webhook.shopify.ignored")
		return nil
	}
}
