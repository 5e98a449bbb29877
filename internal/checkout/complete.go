package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/session"
	"github.com/splitpay/server/internal/shopify"
	"github.com/splitpay/server/internal/storage"
	"github.com/splitpay/server/internal/stripe"
	"github.com/splitpay/server/internal/validate"
)

// CardConfirmation pairs an intent from the session with the payment
// method the buyer entered for it.
type CardConfirmation struct {
	IntentID string
	MethodID string
}

// CompleteResult reports the settled checkout. Order fields are nil when
// the platform order could not be created yet; the reconciler fills them
// in later.
type CompleteResult struct {
	TransactionID string
	OrderID       *int64
	OrderNumber   *string
	CardCount     int
	TotalCents    int64
}

// Complete settles the checkout: it claims the transaction, places every
// card's hold in parallel, and captures all of them only if every hold
// succeeded. Any authorization failure releases all holds and fails the
// transaction. The submitted cards must cover the session's payments
// exactly.
func (s *Service) Complete(ctx context.Context, sessionID string, cards []CardConfirmation) (CompleteResult, error) {
	start := time.Now()
	result, err := s.complete(ctx, sessionID, cards)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		if ce, ok := AsError(err); ok && ce.Code == apierrors.ErrCodeCardDeclined {
			outcome = "declined"
		}
	}
	if s.metrics != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(outcome).Inc()
		s.metrics.CheckoutDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
	return result, err
}

func (s *Service) complete(ctx context.Context, sessionID string, cards []CardConfirmation) (CompleteResult, error) {
	log := logger.FromContext(ctx)

	sess, err := s.getSession(sessionID)
	if err != nil {
		return CompleteResult{}, err
	}

	methodByIntent, err := matchConfirmations(sess, cards)
	if err != nil {
		return CompleteResult{}, err
	}

	shop, err := s.store.GetShopByDomain(ctx, sess.ShopDomain)
	if err != nil {
		return CompleteResult{}, wrapInternal("load store", err)
	}
	l := s.limitsFor(shop)

	amounts := make([]int64, len(sess.Payments))
	for i, p := range sess.Payments {
		amounts[i] = p.AmountCents
	}
	if err := validate.SplitAmounts(sess.TotalCents, amounts, l.MinAmountCents, l.MaxCards); err != nil {
		return CompleteResult{}, newError(apierrors.ErrCodeInvalidAmount, err.Error())
	}

	// Single-winner guard: a concurrent complete on the same transaction
	// loses here.
	if err := s.store.ClaimTransaction(ctx, sess.TransactionID); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return CompleteResult{}, newError(apierrors.ErrCodeCheckoutFailed, "checkout is already being processed")
		case errors.Is(err, storage.ErrNotFound):
			return CompleteResult{}, newError(apierrors.ErrCodeTransactionNotFound, "transaction not found")
		default:
			return CompleteResult{}, wrapInternal("claim transaction", err)
		}
	}

	log.Info().
		Str("transaction_id", sess.TransactionID).
		Int("cards", len(sess.Payments)).
		Int64("total_cents", sess.TotalCents).
		Msg("checkout.complete.started")

	auths, authErrs := s.authorizeAll(ctx, sess, methodByIntent)
	if failedIdx := firstErrorIndex(authErrs); failedIdx >= 0 {
		s.failAuthorization(ctx, sess, authErrs)
		s.sessions.Delete(sessionID)
		return CompleteResult{}, s.declinedError(sess, failedIdx, authErrs[failedIdx])
	}

	for i, p := range sess.Payments {
		if err := s.store.MarkPaymentAuthorized(ctx, p.PaymentID, auths[i].Card); err != nil {
			log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.mark_authorized_failed")
		}
	}

	captureErrs := s.captureAll(ctx, sess)
	if anyError(captureErrs) {
		s.compensateCapture(ctx, sess, captureErrs)
		s.sessions.Delete(sessionID)
		return CompleteResult{}, &Error{
			Code:    apierrors.ErrCodeStripeError,
			Message: "capture failed, all charges are being reversed",
			cause:   firstError(captureErrs),
		}
	}

	for _, p := range sess.Payments {
		if err := s.store.MarkPaymentCaptured(ctx, p.PaymentID); err != nil {
			log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.mark_captured_failed")
		}
	}
	if err := s.store.CompleteTransaction(ctx, sess.TransactionID); err != nil {
		log.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("checkout.complete.finalize_failed")
	}
	if s.metrics != nil {
		s.metrics.CardsPerCheckout.Observe(float64(len(sess.Payments)))
	}

	result := CompleteResult{
		TransactionID: sess.TransactionID,
		CardCount:     len(sess.Payments),
		TotalCents:    sess.TotalCents,
	}

	// The money has moved; order submission failures are retried by the
	// reconciler and must not fail the checkout.
	if order, err := s.submitOrder(ctx, shop, sess.TransactionID, sess.CheckoutToken, sess.Email, sess.TotalCents, sess.Currency, len(sess.Payments)); err != nil {
		log.Warn().Err(err).Str("transaction_id", sess.TransactionID).Msg("checkout.complete.order_deferred")
	} else {
		result.OrderID = &order.ID
		result.OrderNumber = &order.Number
	}

	s.sessions.Delete(sessionID)
	log.Info().
		Str("transaction_id", sess.TransactionID).
		Int("cards", len(sess.Payments)).
		Msg("checkout.complete.succeeded")
	return result, nil
}

// matchConfirmations checks the submitted cards against the session: every
// pending payment needs exactly one confirmation and no extras are allowed.
func matchConfirmations(sess *session.Session, cards []CardConfirmation) (map[string]string, error) {
	if len(cards) != len(sess.Payments) {
		return nil, &Error{
			Code:    apierrors.ErrCodeMissingParams,
			Message: "payments must cover every card in the session",
			Details: map[string]any{"expected": len(sess.Payments), "got": len(cards)},
		}
	}
	methodByIntent := make(map[string]string, len(cards))
	for _, c := range cards {
		if !validate.IsPaymentIntentID(c.IntentID) || !validate.IsPaymentMethodID(c.MethodID) {
			return nil, newError(apierrors.ErrCodeMissingParams, "payment_intent_id and payment_method_id are required for every card")
		}
		if _, dup := methodByIntent[c.IntentID]; dup {
			return nil, newError(apierrors.ErrCodeMissingParams, "duplicate payment_intent_id in payments")
		}
		methodByIntent[c.IntentID] = c.MethodID
	}
	for _, p := range sess.Payments {
		if _, ok := methodByIntent[p.IntentID]; !ok {
			return nil, &Error{
				Code:    apierrors.ErrCodeMissingParams,
				Message: "a session card is missing from payments",
				Details: map[string]any{"payment_intent_id": p.IntentID},
			}
		}
	}
	return methodByIntent, nil
}

// authorizeAll confirms every card's hold in parallel and waits for all of
// them, returning a per-card error slice. An intent the provider already
// holds an authorization for (confirmed client side, or left behind by an
// interrupted attempt) is accepted as-is instead of failing the confirm.
func (s *Service) authorizeAll(ctx context.Context, sess *session.Session, methodByIntent map[string]string) ([]stripe.Authorization, []error) {
	start := time.Now()
	auths := make([]stripe.Authorization, len(sess.Payments))
	errs := make([]error, len(sess.Payments))

	var g errgroup.Group
	for i, p := range sess.Payments {
		i, p := i, p
		g.Go(func() error {
			auth, err := s.provider.ConfirmAuthorization(ctx, p.IntentID, methodByIntent[p.IntentID])
			if err != nil {
				if current, gerr := s.provider.GetAuthorization(ctx, p.IntentID); gerr == nil && isAuthorized(current.Status) {
					auth, err = current, nil
				}
			}
			auths[i], errs[i] = auth, err
			if s.metrics != nil {
				outcome := "ok"
				if err != nil {
					outcome = "failed"
				}
				s.metrics.PaymentsTotal.WithLabelValues("authorize", outcome).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.AuthorizeDuration.Observe(time.Since(start).Seconds())
	}
	return auths, errs
}

func isAuthorized(status stripe.IntentStatus) bool {
	return status == stripe.StatusRequiresCapture || status == stripe.StatusSucceeded
}

// failAuthorization releases every hold after a decline: each failed card
// is marked failed with its own provider detail, the rest voided. The
// transaction keeps the first decline's provider message as its reason.
func (s *Service) failAuthorization(ctx context.Context, sess *session.Session, authErrs []error) {
	log := logger.FromContext(ctx)

	declined := 0
	for i, p := range sess.Payments {
		if err := s.provider.CancelAuthorization(ctx, p.IntentID); err != nil {
			log.Error().Err(err).Str("intent_id", p.IntentID).Msg("checkout.complete.release_failed")
		}
		if authErrs[i] != nil {
			declined++
			code, message := failureDetail(authErrs[i])
			if err := s.store.MarkPaymentFailed(ctx, p.PaymentID, code, message); err != nil {
				log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.mark_failed_failed")
			}
			continue
		}
		if err := s.store.MarkPaymentVoided(ctx, p.PaymentID); err != nil && !errors.Is(err, storage.ErrConflict) {
			log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.mark_voided_failed")
		}
	}

	firstIdx := firstErrorIndex(authErrs)
	_, message := failureDetail(authErrs[firstIdx])
	reason := "Payment failed: " + message
	if err := s.store.SetTransactionStatus(ctx, sess.TransactionID, storage.TransactionFailed, &reason); err != nil {
		log.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("checkout.complete.mark_failed_txn")
	}

	log.Warn().
		Str("transaction_id", sess.TransactionID).
		Int("declined_cards", declined).
		Err(authErrs[firstIdx]).
		Msg("checkout.complete.declined")
}

// declinedError builds the client-facing failure, identifying which card
// failed so the widget can highlight it.
func (s *Service) declinedError(sess *session.Session, failedIdx int, authErr error) error {
	failedCard := map[string]any{
		"payment_intent_id": sess.Payments[failedIdx].IntentID,
		"payment_id":        sess.Payments[failedIdx].PaymentID,
		"index":             failedIdx + 1,
	}
	message := "one of the cards was declined"
	if pe, ok := stripe.AsProviderError(authErr); ok {
		for k, v := range declineDetails(pe) {
			failedCard[k] = v
		}
		if pe.Kind == stripe.KindInteractiveRequired {
			message = "one of the cards requires interactive authentication"
		} else if pe.Message != "" {
			message = pe.Message
		}
		if pe.Kind == stripe.KindTransient {
			return &Error{
				Code:    apierrors.ErrCodeStripeError,
				Message: "payment provider is unavailable",
				Details: map[string]any{"failedCard": failedCard},
				cause:   authErr,
			}
		}
	}
	return &Error{
		Code:    apierrors.ErrCodeCardDeclined,
		Message: message,
		Details: map[string]any{"failedCard": failedCard},
		cause:   authErr,
	}
}

// captureAll captures every authorized hold in parallel, all-settle.
func (s *Service) captureAll(ctx context.Context, sess *session.Session) []error {
	start := time.Now()
	errs := make([]error, len(sess.Payments))

	var g errgroup.Group
	for i, p := range sess.Payments {
		i, p := i, p
		g.Go(func() error {
			errs[i] = s.provider.CaptureAuthorization(ctx, p.IntentID)
			if s.metrics != nil {
				outcome := "ok"
				if errs[i] != nil {
					outcome = "failed"
				}
				s.metrics.PaymentsTotal.WithLabelValues("capture", outcome).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.CaptureDuration.Observe(time.Since(start).Seconds())
	}
	return errs
}

// compensateCapture unwinds a mixed capture result: uncaptured holds are
// released and already-captured cards are refunded in full. The mixed state
// itself is counted as an anomaly because the all-or-nothing guarantee was
// only restored after the fact.
func (s *Service) compensateCapture(ctx context.Context, sess *session.Session, captureErrs []error) {
	log := logger.FromContext(ctx)

	captured := 0
	for i := range captureErrs {
		if captureErrs[i] == nil {
			captured++
		}
	}
	if captured > 0 && s.metrics != nil {
		s.metrics.PartialCaptureAnomalies.Inc()
	}
	log.Error().
		Str("transaction_id", sess.TransactionID).
		Int("captured", captured).
		Int("cards", len(sess.Payments)).
		Msg("checkout.complete.capture_partial")

	for i, p := range sess.Payments {
		if captureErrs[i] != nil {
			// The hold never converted; release it.
			if err := s.provider.CancelAuthorization(ctx, p.IntentID); err != nil {
				log.Error().Err(err).Str("intent_id", p.IntentID).Msg("checkout.complete.release_failed")
			}
			code, message := failureDetail(captureErrs[i])
			if err := s.store.MarkPaymentFailed(ctx, p.PaymentID, code, message); err != nil {
				log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.mark_failed_failed")
			}
			continue
		}

		// Already charged; reverse it.
		if err := s.store.MarkPaymentCaptured(ctx, p.PaymentID); err != nil {
			log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.mark_captured_failed")
		}
		if err := s.refundCapturedPayment(ctx, sess.TransactionID, p); err != nil {
			log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("checkout.complete.compensation_refund_failed")
		}
	}

	reason := "capture failed on some cards, charges reversed"
	if err := s.store.SetTransactionStatus(ctx, sess.TransactionID, storage.TransactionFailed, &reason); err != nil {
		log.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("checkout.complete.mark_failed_txn")
	}
}

// submitOrder creates the platform order for a settled transaction and
// records the order reference.
func (s *Service) submitOrder(ctx context.Context, shop storage.Shop, transactionID, checkoutToken, email string, totalCents int64, currency string, cardCount int) (shopify.Order, error) {
	order, err := s.platform.CreateOrder(ctx, shop.ShopDomain, shop.AccessToken, shopify.OrderRequest{
		CheckoutToken: checkoutToken,
		Email:         email,
		TotalCents:    totalCents,
		Currency:      currency,
		TransactionID: transactionID,
		CardCount:     cardCount,
	})
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.OrderSubmissionsTotal.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		return shopify.Order{}, err
	}
	if err := s.store.SetTransactionOrder(ctx, transactionID, order.ID, order.Number); err != nil {
		return shopify.Order{}, fmt.Errorf("record order: %w", err)
	}
	return order, nil
}

func failureDetail(err error) (code, message string) {
	if pe, ok := stripe.AsProviderError(err); ok {
		return pe.Code, pe.Message
	}
	return "provider_error", err.Error()
}

func firstErrorIndex(errs []error) int {
	for i, err := range errs {
		if err != nil {
			return i
		}
	}
	return -1
}

func anyError(errs []error) bool {
	for _, err := range errs {
		if err != nil {
			return true
		}
	}
	return false
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
