package httpserver

import (
	"io"
	"net/http"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/pkg/responders"
)

// Webhook bodies are small JSON payloads; this cap guards against abuse.
const maxWebhookBody = 1 << 20

// shopifyWebhook authenticates and dispatches platform webhooks. Processing
// failures after a valid signature are acknowledged with 200 so the
// platform stops retrying; reconciliation picks up what was missed.
func (h handlers) shopifyWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "unreadable body")
		return
	}
	if !h.shopify.VerifyWebhookHMAC(body, r.Header.Get("X-Shopify-Hmac-Sha256")) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "webhook signature verification failed")
		return
	}

	topic := r.Header.Get("X-Shopify-Topic")
	shopDomain := r.Header.Get("X-Shopify-Shop-Domain")
	if err := h.shopifyWebhooks.Process(r.Context(), topic, shopDomain, body); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("shop", shopDomain).Msg("webhook.shopify.swallowed")
		if h.metrics != nil {
			h.metrics.WebhooksSwallowedTotal.WithLabelValues("shopify").Inc()
		}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// stripeWebhook authenticates and dispatches provider webhooks. Same
// swallow policy as the platform side: a verified event never triggers a
// provider retry loop.
func (h handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingParams, "unreadable body")
		return
	}
	event, err := h.stripe.VerifyWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "webhook signature verification failed")
		return
	}

	if err := h.stripeWebhooks.Process(r.Context(), event); err != nil {
		log.Error().Err(err).Str("event", string(event.Type)).Msg("webhook.stripe.swallowed")
		if h.metrics != nil {
			h.metrics.WebhooksSwallowedTotal.WithLabelValues("stripe").Inc()
		}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"success": true})
}
