// Package webhooks reconciles provider and platform events against stored
// state. Processing is idempotent: replayed events are no-ops and events
// arriving after a terminal state never regress it.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v72"

	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/metrics"
	"github.com/splitpay/server/internal/storage"
)

// StripeProcessor applies provider events to payment and refund rows.
type StripeProcessor struct {
	store   storage.Store
	metrics *metrics.Metrics
}

// NewStripeProcessor wires the provider event handler.
func NewStripeProcessor(store storage.Store, metricsCollector *metrics.Metrics) *StripeProcessor {
	return &StripeProcessor{store: store, metrics: metricsCollector}
}

// Process applies one verified provider event. Unknown event types and
// events for intents this service never created are ignored.
func (p *StripeProcessor) Process(ctx context.Context, event stripeapi.Event) error {
	outcome := "ok"
	err := p.process(ctx, event)
	if err != nil {
		outcome = "error"
	}
	if p.metrics != nil {
		p.metrics.WebhooksTotal.WithLabelValues("stripe", string(event.Type), outcome).Inc()
	}
	return err
}

func (p *StripeProcessor) process(ctx context.Context, event stripeapi.Event) error {
	log := logger.FromContext(ctx)

	switch event.Type {
	case "payment_intent.succeeded":
		pi, err := intentFromEvent(event)
		if err != nil {
			return err
		}
		changed, err := p.store.MarkPaymentCapturedByIntent(ctx, pi.ID)
		if err != nil {
			return fmt.Errorf("reconcile captured intent %s: %w", pi.ID, err)
		}
		log.Info().
			Str("intent_id", pi.ID).
			Bool("changed", changed).
			Msg("webhook.stripe.intent_succeeded")
		return nil

	case "payment_intent.payment_failed":
		pi, err := intentFromEvent(event)
		if err != nil {
			return err
		}
		code, message := "payment_failed", "payment failed"
		if pi.LastPaymentError != nil {
			if pi.LastPaymentError.Code != "" {
				code = string(pi.LastPaymentError.Code)
			}
			if pi.LastPaymentError.Msg != "" {
				message = pi.LastPaymentError.Msg
			}
		}
		changed, err := p.store.MarkPaymentFailedByIntent(ctx, pi.ID, code, message)
		if err != nil {
			return fmt.Errorf("reconcile failed intent %s: %w", pi.ID, err)
		}
		log.Info().
			Str("intent_id", pi.ID).
			Str("code", code).
			Bool("changed", changed).
			Msg("webhook.stripe.intent_failed")
		return nil

	case "charge.refunded":
		var charge stripeapi.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return fmt.Errorf("decode charge: %w", err)
		}
		if charge.Refunds == nil {
			return nil
		}
		for _, re := range charge.Refunds.Data {
			status := mapEventRefundStatus(re.Status)
			changed, err := p.store.SetRefundStatusByProviderID(ctx, re.ID, status)
			if err != nil {
				return fmt.Errorf("reconcile refund %s: %w", re.ID, err)
			}
			log.Info().
				Str("provider_refund_id", re.ID).
				Str("status", string(status)).
				Bool("changed", changed).
				Msg("webhook.stripe.charge_refunded")
		}
		return nil

	case "charge.dispute.created":
		var dispute stripeapi.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return fmt.Errorf("decode dispute: %w", err)
		}
		intentID := ""
		if dispute.PaymentIntent != nil {
			intentID = dispute.PaymentIntent.ID
		}
		log.Warn().
			Str("dispute_id", dispute.ID).
			Str("intent_id", intentID).
			Int64("amount", dispute.Amount).
			Msg("webhook.stripe.dispute_opened")
		return nil

	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("webhook.stripe.ignored")
		return nil
	}
}

func intentFromEvent(event stripeapi.Event) (stripeapi.PaymentIntent, error) {
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return stripeapi.PaymentIntent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	if pi.ID == "" {
		return stripeapi.PaymentIntent{}, fmt.Errorf("event %s carries no intent id", event.ID)
	}
	return pi, nil
}

func mapEventRefundStatus(s stripeapi.RefundStatus) storage.RefundStatus {
	switch s {
	case stripeapi.RefundStatusSucceeded:
		return storage.RefundSucceeded
	case stripeapi.RefundStatusFailed, stripeapi.RefundStatusCanceled:
		return storage.RefundFailed
	default:
		return storage.RefundPending
	}
}
