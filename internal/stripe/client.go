// Package stripe adapts the Stripe PaymentIntents API to the narrow
// provider surface the checkout orchestrator needs: authorization holds
// with manual capture, capture, idempotent cancel, and refunds.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"
	"github.com/stripe/stripe-go/v72/refund"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/splitpay/server/internal/circuitbreaker"
	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/metrics"
	"github.com/splitpay/server/internal/storage"
)

// IntentStatus is the provider's payment intent state, mapped to a closed
// set. Unknown provider statuses are rejected at the boundary rather than
// passed through.
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusSucceeded             IntentStatus = "succeeded"
	StatusCanceled              IntentStatus = "canceled"
)

func mapIntentStatus(s stripeapi.PaymentIntentStatus) (IntentStatus, error) {
	switch s {
	case stripeapi.PaymentIntentStatusRequiresPaymentMethod:
		return StatusRequiresPaymentMethod, nil
	case stripeapi.PaymentIntentStatusRequiresConfirmation:
		return StatusRequiresConfirmation, nil
	case stripeapi.PaymentIntentStatusRequiresAction:
		return StatusRequiresAction, nil
	case stripeapi.PaymentIntentStatusProcessing:
		return StatusProcessing, nil
	case stripeapi.PaymentIntentStatusRequiresCapture:
		return StatusRequiresCapture, nil
	case stripeapi.PaymentIntentStatusSucceeded:
		return StatusSucceeded, nil
	case stripeapi.PaymentIntentStatusCanceled:
		return StatusCanceled, nil
	default:
		return "", fmt.Errorf("stripe: unknown intent status %q", s)
	}
}

// Authorization is the adapter's view of a payment intent.
type Authorization struct {
	IntentID     string
	ClientSecret string
	Status       IntentStatus
	Card         storage.CardDetails
}

// RefundResult is the provider's acknowledgement of a refund request.
type RefundResult struct {
	RefundID string
	Status   string // pending, succeeded, failed
}

// Client wraps stripe-go behind a circuit breaker with bounded retries.
type Client struct {
	cfg      config.StripeConfig
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
}

// NewClient sets up stripe-go with the provided credentials.
func NewClient(cfg config.StripeConfig, breakers *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	stripeapi.Key = cfg.SecretKey
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.Config{})
	}
	return &Client{cfg: cfg, breakers: breakers, metrics: metricsCollector}
}

// call wraps one provider operation with circuit breaker, retry, metrics,
// and error typing.
func (c *Client) call(ctx context.Context, operation string, fn func() (*stripeapi.PaymentIntent, error)) (*stripeapi.PaymentIntent, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()

	start := time.Now()
	pi, err := withRetry(ctx, c.cfg.MaxRetries, func() (*stripeapi.PaymentIntent, error) {
		res, err := c.breakers.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
			return fn()
		})
		if err != nil {
			return nil, wrapError(err)
		}
		return res.(*stripeapi.PaymentIntent), nil
	})
	if c.metrics != nil {
		c.metrics.ObserveProviderCall(string(circuitbreaker.ServiceStripe), operation, start, err)
	}
	return pi, err
}

func (c *Client) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout.Duration <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout.Duration)
}

// CreateAuthorization opens a manual-capture intent for one card's share.
// The hold is not placed until ConfirmAuthorization.
func (c *Client) CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Authorization, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(amountCents),
		Currency:           stripeapi.String(currency),
		CaptureMethod:      stripeapi.String(string(stripeapi.PaymentIntentCaptureMethodManual)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.call(ctx, "create_authorization", func() (*stripeapi.PaymentIntent, error) {
		return paymentintent.New(params)
	})
	if err != nil {
		return Authorization{}, err
	}
	return authorizationFromIntent(pi)
}

// GetAuthorization fetches the current provider state of an intent.
func (c *Client) GetAuthorization(ctx context.Context, intentID string) (Authorization, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.call(ctx, "get_authorization", func() (*stripeapi.PaymentIntent, error) {
		return paymentintent.Get(intentID, params)
	})
	if err != nil {
		return Authorization{}, err
	}
	return authorizationFromIntent(pi)
}

// ConfirmAuthorization places the hold by confirming the intent with the
// buyer's payment method. Cards demanding an interactive step are rejected
// with KindInteractiveRequired.
func (c *Client) ConfirmAuthorization(ctx context.Context, intentID, methodID string) (Authorization, error) {
	params := &stripeapi.PaymentIntentConfirmParams{
		PaymentMethod: stripeapi.String(methodID),
	}
	params.Context = ctx

	pi, err := c.call(ctx, "confirm_authorization", func() (*stripeapi.PaymentIntent, error) {
		return paymentintent.Confirm(intentID, params)
	})
	if err != nil {
		return Authorization{}, err
	}

	auth, err := authorizationFromIntent(pi)
	if err != nil {
		return Authorization{}, err
	}

	switch auth.Status {
	case StatusRequiresCapture, StatusSucceeded:
		return auth, nil
	case StatusRequiresAction:
		return Authorization{}, &ProviderError{
			Kind:    KindInteractiveRequired,
			Code:    "authentication_required",
			Message: "card requires interactive authentication",
		}
	default:
		return Authorization{}, declineFromIntent(pi, auth.Status)
	}
}

// CaptureAuthorization captures a previously placed hold in full.
func (c *Client) CaptureAuthorization(ctx context.Context, intentID string) error {
	params := &stripeapi.PaymentIntentCaptureParams{}
	params.Context = ctx

	_, err := c.call(ctx, "capture_authorization", func() (*stripeapi.PaymentIntent, error) {
		return paymentintent.Capture(intentID, params)
	})
	return err
}

// CancelAuthorization releases a hold. Cancelling an intent that is
// already canceled is treated as success so compensation can be retried
// blindly.
func (c *Client) CancelAuthorization(ctx context.Context, intentID string) error {
	params := &stripeapi.PaymentIntentCancelParams{}
	params.Context = ctx

	_, err := c.call(ctx, "cancel_authorization", func() (*stripeapi.PaymentIntent, error) {
		return paymentintent.Cancel(intentID, params)
	})
	if err != nil {
		if pe, ok := AsProviderError(err); ok && isAlreadyCanceled(pe) {
			return nil
		}
		return err
	}
	return nil
}

func isAlreadyCanceled(pe *ProviderError) bool {
	return pe.Code == string(stripeapi.ErrorCodePaymentIntentUnexpectedState) ||
		pe.Code == "payment_intent_invalid_state"
}

// CreateRefund refunds part of a captured intent. Reason must be one of the
// provider's accepted values (duplicate, fraudulent, requested_by_customer)
// or empty to omit it.
func (c *Client) CreateRefund(ctx context.Context, intentID string, amountCents int64, reason string, metadata map[string]string) (RefundResult, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()

	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(intentID),
		Amount:        stripeapi.Int64(amountCents),
	}
	if reason != "" {
		params.Reason = stripeapi.String(reason)
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	start := time.Now()
	result, err := withRetry(ctx, c.cfg.MaxRetries, func() (RefundResult, error) {
		res, err := c.breakers.Execute(circuitbreaker.ServiceStripe, func() (interface{}, error) {
			return refund.New(params)
		})
		if err != nil {
			return RefundResult{}, wrapError(err)
		}
		r := res.(*stripeapi.Refund)
		return RefundResult{RefundID: r.ID, Status: string(r.Status)}, nil
	})
	if c.metrics != nil {
		c.metrics.ObserveProviderCall(string(circuitbreaker.ServiceStripe), "create_refund", start, err)
	}
	return result, err
}

// VerifyWebhook checks the event signature against the endpoint secret and
// returns the parsed event.
func (c *Client) VerifyWebhook(payload []byte, signature string) (stripeapi.Event, error) {
	if c.cfg.WebhookSecret == "" {
		return stripeapi.Event{}, errors.New("stripe: webhook secret not configured")
	}
	event, err := webhook.ConstructEvent(payload, signature, c.cfg.WebhookSecret)
	if err != nil {
		return stripeapi.Event{}, fmt.Errorf("stripe: construct event: %w", err)
	}
	return event, nil
}

func authorizationFromIntent(pi *stripeapi.PaymentIntent) (Authorization, error) {
	status, err := mapIntentStatus(pi.Status)
	if err != nil {
		return Authorization{}, &ProviderError{Kind: KindInvalid, Code: "unknown_status", Message: err.Error()}
	}
	auth := Authorization{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       status,
	}
	if pi.PaymentMethod != nil {
		auth.Card.MethodID = pi.PaymentMethod.ID
	}
	if pi.Charges != nil && len(pi.Charges.Data) > 0 {
		if details := pi.Charges.Data[0].PaymentMethodDetails; details != nil && details.Card != nil {
			auth.Card.Brand = string(details.Card.Brand)
			auth.Card.Last4 = details.Card.Last4
			auth.Card.ExpMonth = int(details.Card.ExpMonth)
			auth.Card.ExpYear = int(details.Card.ExpYear)
		}
	}
	return auth, nil
}

func declineFromIntent(pi *stripeapi.PaymentIntent, status IntentStatus) error {
	pe := &ProviderError{
		Kind:    KindDeclined,
		Code:    "card_declined",
		Message: fmt.Sprintf("confirmation left intent in status %s", status),
	}
	if lastErr := pi.LastPaymentError; lastErr != nil {
		if lastErr.Code != "" {
			pe.Code = string(lastErr.Code)
		}
		pe.DeclineCode = string(lastErr.DeclineCode)
		if lastErr.Msg != "" {
			pe.Message = lastErr.Msg
		}
	}
	return pe
}
