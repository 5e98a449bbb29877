// Package checkout orchestrates the split-payment flow: session setup,
// per-card authorization holds, the all-or-nothing capture, order
// submission, and proportional refunds.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/metrics"
	"github.com/splitpay/server/internal/session"
	"github.com/splitpay/server/internal/shopify"
	"github.com/splitpay/server/internal/storage"
	"github.com/splitpay/server/internal/stripe"
	"github.com/splitpay/server/internal/validate"
)

// Provider is the card-payment side: authorization holds with manual
// capture, capture, compensating cancel, and refunds.
type Provider interface {
	CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (stripe.Authorization, error)
	GetAuthorization(ctx context.Context, intentID string) (stripe.Authorization, error)
	ConfirmAuthorization(ctx context.Context, intentID, methodID string) (stripe.Authorization, error)
	CaptureAuthorization(ctx context.Context, intentID string) error
	CancelAuthorization(ctx context.Context, intentID string) error
	CreateRefund(ctx context.Context, intentID string, amountCents int64, reason string, metadata map[string]string) (stripe.RefundResult, error)
}

// Platform is the commerce side: the authoritative checkout total and the
// order created once payment settles.
type Platform interface {
	GetCheckout(ctx context.Context, shopDomain, accessToken, checkoutToken string) (shopify.Checkout, error)
	CreateOrder(ctx context.Context, shopDomain, accessToken string, req shopify.OrderRequest) (shopify.Order, error)
}

// Service coordinates the split-checkout lifecycle.
type Service struct {
	cfg      config.CheckoutConfig
	store    storage.Store
	provider Provider
	platform Platform
	sessions *session.Store
	metrics  *metrics.Metrics
}

// NewService wires the orchestrator.
func NewService(cfg config.CheckoutConfig, store storage.Store, provider Provider, platform Platform, sessions *session.Store, metricsCollector *metrics.Metrics) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		provider: provider,
		platform: platform,
		sessions: sessions,
		metrics:  metricsCollector,
	}
}

// limits are the effective split rules for one shop: per-shop settings when
// set, service defaults otherwise.
type limits struct {
	MaxCards       int
	MinAmountCents int64
}

func (s *Service) limitsFor(shop storage.Shop) limits {
	l := limits{MaxCards: s.cfg.MaxCards, MinAmountCents: s.cfg.MinAmountCents}
	if shop.Settings.MaxCards > 0 {
		l.MaxCards = shop.Settings.MaxCards
	}
	if shop.Settings.MinAmountCents > 0 {
		l.MinAmountCents = shop.Settings.MinAmountCents
	}
	return l
}

// InitRequest starts a split checkout for one platform checkout.
type InitRequest struct {
	ShopDomain    string
	CheckoutToken string
	Email         string
	ClientIP      string
	UserAgent     string
}

// InitResult is what the widget needs to start adding cards. The total is
// the platform's figure, never the client's.
type InitResult struct {
	SessionID      string
	TransactionID  string
	TotalCents     int64
	Currency       string
	MaxCards       int
	MinAmountCents int64
}

// Init validates the shop and checkout, reads the authoritative total from
// the platform, and opens a transaction plus widget session.
func (s *Service) Init(ctx context.Context, req InitRequest) (InitResult, error) {
	log := logger.FromContext(ctx)

	if req.ShopDomain == "" || req.CheckoutToken == "" {
		return InitResult{}, newError(apierrors.ErrCodeMissingParams, "shop and checkout_token are required")
	}
	if !validate.IsShopDomain(req.ShopDomain) {
		return InitResult{}, newError(apierrors.ErrCodeInvalidShop, "shop must be a myshopify.com domain")
	}
	if !validate.IsCheckoutToken(req.CheckoutToken) {
		return InitResult{}, newError(apierrors.ErrCodeInvalidToken, "checkout token is malformed")
	}
	if req.Email != "" && !validate.IsEmail(req.Email) {
		return InitResult{}, newError(apierrors.ErrCodeMissingParams, "email is malformed")
	}

	shop, err := s.store.GetShopByDomain(ctx, req.ShopDomain)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return InitResult{}, newError(apierrors.ErrCodeStoreNotFound, "store is not installed")
		}
		return InitResult{}, wrapInternal("load store", err)
	}
	if !shop.Active {
		return InitResult{}, newError(apierrors.ErrCodeStoreNotFound, "store is not installed")
	}

	// The total comes from the platform, never from the client.
	platformCheckout, err := s.platform.GetCheckout(ctx, shop.ShopDomain, shop.AccessToken, req.CheckoutToken)
	if err != nil {
		log.Error().Err(err).Str("shop", shop.ShopDomain).Msg("checkout.init.platform_lookup_failed")
		return InitResult{}, newError(apierrors.ErrCodeInvalidToken, "checkout could not be loaded")
	}
	if platformCheckout.TotalCents <= 0 {
		return InitResult{}, newError(apierrors.ErrCodeInvalidAmount, "checkout total must be positive")
	}

	currency := platformCheckout.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	email := req.Email
	if email == "" {
		email = platformCheckout.Email
	}

	txn, err := s.findOrCreateTransaction(ctx, shop, req, platformCheckout.TotalCents, currency, email)
	if err != nil {
		return InitResult{}, err
	}

	sess, err := s.sessions.Create(txn.ID, shop.ShopDomain, req.CheckoutToken, currency, email, platformCheckout.TotalCents)
	if err != nil {
		return InitResult{}, wrapInternal("create session", err)
	}

	l := s.limitsFor(shop)
	log.Info().
		Str("transaction_id", txn.ID).
		Str("shop", shop.ShopDomain).
		Int64("total_cents", platformCheckout.TotalCents).
		Msg("checkout.init")

	return InitResult{
		SessionID:      sess.ID,
		TransactionID:  txn.ID,
		TotalCents:     platformCheckout.TotalCents,
		Currency:       currency,
		MaxCards:       l.MaxCards,
		MinAmountCents: l.MinAmountCents,
	}, nil
}

// findOrCreateTransaction reuses the newest pending attempt for the same
// checkout, rejects a checkout that already completed, and opens a fresh
// transaction otherwise. A stale pending row with a different total is
// abandoned rather than reused.
func (s *Service) findOrCreateTransaction(ctx context.Context, shop storage.Shop, req InitRequest, totalCents int64, currency, email string) (storage.Transaction, error) {
	existing, err := s.store.GetLatestTransactionByCheckout(ctx, shop.ID, req.CheckoutToken)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.Transaction{}, wrapInternal("look up checkout", err)
	}
	if err == nil {
		switch existing.Status {
		case storage.TransactionCompleted, storage.TransactionPartiallyRefunded, storage.TransactionRefunded:
			return storage.Transaction{}, newError(apierrors.ErrCodeCheckoutFailed, "checkout was already completed")
		case storage.TransactionPending:
			if existing.TotalAmount == totalCents {
				return existing, nil
			}
		}
	}

	txn := storage.Transaction{
		ID:            uuid.NewString(),
		ShopID:        shop.ID,
		CheckoutToken: req.CheckoutToken,
		TotalAmount:   totalCents,
		Currency:      currency,
		Status:        storage.TransactionPending,
		CustomerEmail: email,
		CustomerIP:    req.ClientIP,
		UserAgent:     req.UserAgent,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		return storage.Transaction{}, wrapInternal("create transaction", err)
	}
	return txn, nil
}

// AddCardRequest attaches one card's share to the session.
type AddCardRequest struct {
	SessionID   string
	AmountCents int64
}

// AddCardResult returns the new intent. The client secret lets the widget
// collect card details directly with the provider; the card number never
// crosses this service.
type AddCardResult struct {
	PaymentID      string
	IntentID       string
	ClientSecret   string
	AmountCents    int64
	RemainingCents int64
}

// AddCard opens a manual-capture intent for one card's share and records
// the pending payment. No hold is placed until Complete.
func (s *Service) AddCard(ctx context.Context, req AddCardRequest) (AddCardResult, error) {
	log := logger.FromContext(ctx)

	if req.SessionID == "" {
		return AddCardResult{}, newError(apierrors.ErrCodeMissingParams, "session_id is required")
	}

	sess, err := s.getSession(req.SessionID)
	if err != nil {
		return AddCardResult{}, err
	}

	shop, err := s.store.GetShopByDomain(ctx, sess.ShopDomain)
	if err != nil {
		return AddCardResult{}, wrapInternal("load store", err)
	}
	l := s.limitsFor(shop)

	if len(sess.Payments) >= l.MaxCards {
		return AddCardResult{}, &Error{
			Code:    apierrors.ErrCodeTooManyCards,
			Message: fmt.Sprintf("at most %d cards per checkout", l.MaxCards),
			Details: map[string]any{"max_cards": l.MaxCards},
		}
	}
	if err := validate.Amount(req.AmountCents, l.MinAmountCents); err != nil {
		return AddCardResult{}, newError(apierrors.ErrCodeInvalidAmount, err.Error())
	}
	if req.AmountCents > sess.Remaining() {
		return AddCardResult{}, &Error{
			Code:    apierrors.ErrCodeInvalidAmount,
			Message: "amount exceeds the remaining balance",
			Details: map[string]any{"remaining_cents": sess.Remaining()},
		}
	}

	auth, err := s.provider.CreateAuthorization(ctx, req.AmountCents, sess.Currency, map[string]string{
		"transaction_id": sess.TransactionID,
		"shop_domain":    sess.ShopDomain,
		"card_index":     fmt.Sprintf("%d", len(sess.Payments)+1),
	})
	if err != nil {
		return AddCardResult{}, s.providerToError(err)
	}

	payment := storage.Payment{
		ID:               uuid.NewString(),
		TransactionID:    sess.TransactionID,
		ProviderIntentID: auth.IntentID,
		Amount:           req.AmountCents,
		Status:           storage.PaymentPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		// Compensate the orphaned intent before surfacing the failure.
		if cancelErr := s.provider.CancelAuthorization(ctx, auth.IntentID); cancelErr != nil {
			log.Error().Err(cancelErr).Str("intent_id", auth.IntentID).Msg("checkout.add_card.orphan_cancel_failed")
		}
		return AddCardResult{}, wrapInternal("create payment", err)
	}

	updated, err := s.sessions.Update(req.SessionID, func(cur *session.Session) error {
		cur.Payments = append(cur.Payments, session.PendingPayment{
			PaymentID:   payment.ID,
			IntentID:    auth.IntentID,
			AmountCents: req.AmountCents,
		})
		return nil
	})
	if err != nil {
		return AddCardResult{}, wrapInternal("update session", err)
	}

	log.Info().
		Str("transaction_id", sess.TransactionID).
		Str("payment_id", payment.ID).
		Int64("amount_cents", req.AmountCents).
		Int("cards", len(updated.Payments)).
		Msg("checkout.card_added")

	return AddCardResult{
		PaymentID:      payment.ID,
		IntentID:       auth.IntentID,
		ClientSecret:   auth.ClientSecret,
		AmountCents:    req.AmountCents,
		RemainingCents: updated.Remaining(),
	}, nil
}

// RemoveCard cancels a pending card's intent and voids its payment row. The
// amount returns to the session's remaining balance.
func (s *Service) RemoveCard(ctx context.Context, sessionID, intentID string) error {
	log := logger.FromContext(ctx)

	if !validate.IsPaymentIntentID(intentID) {
		return newError(apierrors.ErrCodeMissingParams, "payment_intent_id is malformed")
	}

	sess, err := s.getSession(sessionID)
	if err != nil {
		return err
	}

	var pending *session.PendingPayment
	for i := range sess.Payments {
		if sess.Payments[i].IntentID == intentID {
			pending = &sess.Payments[i]
			break
		}
	}
	if pending == nil {
		return newError(apierrors.ErrCodeTransactionNotFound, "payment is not part of this session")
	}

	// Cancel is idempotent: an intent already in a final state counts as
	// released.
	if err := s.provider.CancelAuthorization(ctx, pending.IntentID); err != nil {
		return s.providerToError(err)
	}
	if err := s.store.MarkPaymentVoided(ctx, pending.PaymentID); err != nil && !errors.Is(err, storage.ErrConflict) {
		return wrapInternal("void payment", err)
	}

	if _, err := s.sessions.Update(sessionID, func(cur *session.Session) error {
		kept := cur.Payments[:0]
		for _, p := range cur.Payments {
			if p.IntentID != intentID {
				kept = append(kept, p)
			}
		}
		cur.Payments = kept
		return nil
	}); err != nil {
		return wrapInternal("update session", err)
	}

	log.Info().
		Str("transaction_id", sess.TransactionID).
		Str("intent_id", intentID).
		Msg("checkout.card_removed")
	return nil
}

func (s *Service) getSession(id string) (*session.Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, newError(apierrors.ErrCodeSessionNotFound, "session expired or unknown")
		}
		return nil, wrapInternal("load session", err)
	}
	return sess, nil
}

// providerToError maps a typed provider failure onto the API error surface.
func (s *Service) providerToError(err error) error {
	pe, ok := stripe.AsProviderError(err)
	if !ok {
		return wrapInternal("provider call", err)
	}
	switch pe.Kind {
	case stripe.KindDeclined, stripe.KindInteractiveRequired:
		return &Error{
			Code:    apierrors.ErrCodeCardDeclined,
			Message: pe.Message,
			Details: declineDetails(pe),
			cause:   err,
		}
	case stripe.KindTransient:
		return &Error{Code: apierrors.ErrCodeStripeError, Message: "payment provider is unavailable", cause: err}
	default:
		return &Error{Code: apierrors.ErrCodeStripeError, Message: pe.Message, cause: err}
	}
}

func declineDetails(pe *stripe.ProviderError) map[string]any {
	details := map[string]any{"code": pe.Code}
	if pe.DeclineCode != "" {
		details["decline_code"] = pe.DeclineCode
	}
	return details
}
