package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/logger"
	"github.com/splitpay/server/internal/money"
	"github.com/splitpay/server/internal/session"
	"github.com/splitpay/server/internal/storage"
)

// RefundRequest refunds part or all of a completed transaction. The amount
// is split across the captured cards in proportion to what each was
// charged.
type RefundRequest struct {
	TransactionID string
	AmountCents   int64
	Reason        string
	InitiatedBy   storage.RefundInitiator
}

// RefundSummary reports the per-card refund rows and the transaction's new
// status.
type RefundSummary struct {
	Refunds           []storage.Refund
	RefundedCents     int64
	FailedCount       int
	TransactionStatus storage.TransactionStatus
}

// Refund splits the requested amount across captured payments and issues
// one provider refund per card. Individual card failures do not abort the
// rest; they are reported in the summary.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (RefundSummary, error) {
	log := logger.FromContext(ctx)

	if req.AmountCents <= 0 {
		return RefundSummary{}, newError(apierrors.ErrCodeInvalidAmount, "refund amount must be positive")
	}
	if !validRefundReason(req.Reason) {
		return RefundSummary{}, newError(apierrors.ErrCodeMissingParams, "reason must be duplicate, fraudulent, or requested_by_customer")
	}

	txn, err := s.store.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return RefundSummary{}, newError(apierrors.ErrCodeTransactionNotFound, "transaction not found")
		}
		return RefundSummary{}, wrapInternal("load transaction", err)
	}
	switch txn.Status {
	case storage.TransactionCompleted, storage.TransactionPartiallyRefunded:
	case storage.TransactionRefunded:
		return RefundSummary{}, newError(apierrors.ErrCodeInvalidAmount, "transaction is already fully refunded")
	default:
		return RefundSummary{}, newError(apierrors.ErrCodeCheckoutFailed, "only completed transactions can be refunded")
	}

	payments, err := s.store.ListPayments(ctx, req.TransactionID)
	if err != nil {
		return RefundSummary{}, wrapInternal("list payments", err)
	}
	refunds, err := s.store.ListRefunds(ctx, req.TransactionID)
	if err != nil {
		return RefundSummary{}, wrapInternal("list refunds", err)
	}

	// Refundable slack per captured card: its charge minus refunds that
	// have settled or are still in flight.
	refundedByPayment := make(map[string]int64)
	for _, r := range refunds {
		if r.Status != storage.RefundFailed {
			refundedByPayment[r.PaymentID] += r.Amount
		}
	}

	var captured []storage.Payment
	var remaining []int64
	var available int64
	for _, p := range payments {
		if p.Status != storage.PaymentCaptured && p.Status != storage.PaymentRefunded {
			continue
		}
		slack := p.Amount - refundedByPayment[p.ID]
		if slack < 0 {
			slack = 0
		}
		captured = append(captured, p)
		remaining = append(remaining, slack)
		available += slack
	}
	if len(captured) == 0 {
		return RefundSummary{}, newError(apierrors.ErrCodeCheckoutFailed, "transaction has no captured payments")
	}
	if req.AmountCents > available {
		return RefundSummary{}, &Error{
			Code:    apierrors.ErrCodeInvalidAmount,
			Message: "refund exceeds the refundable balance",
			Details: map[string]any{"available_cents": available},
		}
	}

	shares := money.Distribute(req.AmountCents, remaining)
	capShares(shares, remaining)

	initiatedBy := req.InitiatedBy
	if initiatedBy == "" {
		initiatedBy = storage.RefundByAdmin
	}
	var rows []storage.Refund
	for i, share := range shares {
		if share <= 0 {
			continue
		}
		rows = append(rows, storage.Refund{
			ID:            uuid.NewString(),
			TransactionID: req.TransactionID,
			PaymentID:     captured[i].ID,
			Amount:        share,
			Status:        storage.RefundPending,
			Reason:        req.Reason,
			InitiatedBy:   initiatedBy,
		})
	}
	if err := s.store.CreateRefunds(ctx, rows); err != nil {
		return RefundSummary{}, wrapInternal("create refunds", err)
	}

	intentByPayment := make(map[string]string, len(captured))
	for _, p := range captured {
		intentByPayment[p.ID] = p.ProviderIntentID
	}

	summary := RefundSummary{}
	for i := range rows {
		row := &rows[i]
		result, err := s.provider.CreateRefund(ctx, intentByPayment[row.PaymentID], row.Amount, req.Reason, map[string]string{
			"transaction_id": req.TransactionID,
			"refund_id":      row.ID,
		})
		if err != nil {
			msg := err.Error()
			row.Status = storage.RefundFailed
			if setErr := s.store.SetRefundStatus(ctx, row.ID, storage.RefundFailed, "", &msg); setErr != nil {
				log.Error().Err(setErr).Str("refund_id", row.ID).Msg("checkout.refund.mark_failed_failed")
			}
			summary.FailedCount++
			if s.metrics != nil {
				s.metrics.RefundsTotal.WithLabelValues(string(storage.RefundFailed)).Inc()
			}
			log.Error().Err(err).Str("refund_id", row.ID).Str("payment_id", row.PaymentID).Msg("checkout.refund.provider_failed")
			continue
		}

		status := mapRefundStatus(result.Status)
		row.Status = status
		row.ProviderRefundID = result.RefundID
		if err := s.store.SetRefundStatus(ctx, row.ID, status, result.RefundID, nil); err != nil {
			log.Error().Err(err).Str("refund_id", row.ID).Msg("checkout.refund.record_failed")
		}
		if status == storage.RefundSucceeded {
			summary.RefundedCents += row.Amount
			if s.metrics != nil {
				s.metrics.RefundAmountTotal.Add(float64(row.Amount))
			}
		}
		if s.metrics != nil {
			s.metrics.RefundsTotal.WithLabelValues(string(status)).Inc()
		}
	}
	summary.Refunds = rows

	if summary.FailedCount == len(rows) {
		return summary, &Error{Code: apierrors.ErrCodeStripeError, Message: "no refund could be issued"}
	}

	status, err := s.settleRefundState(ctx, req.TransactionID, payments)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("checkout.refund.settle_failed")
	}
	summary.TransactionStatus = status

	log.Info().
		Str("transaction_id", req.TransactionID).
		Int64("refunded_cents", summary.RefundedCents).
		Int("failed", summary.FailedCount).
		Str("status", string(status)).
		Msg("checkout.refund.completed")
	return summary, nil
}

// capShares clamps each share to the card's refundable slack and pushes the
// overflow onto cards that still have room. Distribute keeps the sum exact,
// so the carry always finds a home.
func capShares(shares, remaining []int64) {
	var carry int64
	for i := range shares {
		if shares[i] > remaining[i] {
			carry += shares[i] - remaining[i]
			shares[i] = remaining[i]
		}
	}
	for i := range shares {
		if carry == 0 {
			break
		}
		if slack := remaining[i] - shares[i]; slack > 0 {
			move := slack
			if move > carry {
				move = carry
			}
			shares[i] += move
			carry -= move
		}
	}
}

// settleRefundState recomputes transaction and payment refund statuses from
// the settled refund rows.
func (s *Service) settleRefundState(ctx context.Context, transactionID string, payments []storage.Payment) (storage.TransactionStatus, error) {
	refunds, err := s.store.ListRefunds(ctx, transactionID)
	if err != nil {
		return "", err
	}

	succeededByPayment := make(map[string]int64)
	var succeededTotal int64
	for _, r := range refunds {
		if r.Status == storage.RefundSucceeded {
			succeededByPayment[r.PaymentID] += r.Amount
			succeededTotal += r.Amount
		}
	}

	var capturedTotal int64
	for _, p := range payments {
		if p.Status != storage.PaymentCaptured && p.Status != storage.PaymentRefunded {
			continue
		}
		capturedTotal += p.Amount
		if p.Status == storage.PaymentCaptured && succeededByPayment[p.ID] >= p.Amount {
			if err := s.store.MarkPaymentRefunded(ctx, p.ID); err != nil && !errors.Is(err, storage.ErrConflict) {
				return "", err
			}
		}
	}

	status := storage.TransactionPartiallyRefunded
	if capturedTotal > 0 && succeededTotal >= capturedTotal {
		status = storage.TransactionRefunded
	}
	if succeededTotal == 0 {
		return storage.TransactionCompleted, nil
	}
	if err := s.store.SetTransactionStatus(ctx, transactionID, status, nil); err != nil {
		return status, err
	}
	return status, nil
}

func validRefundReason(reason string) bool {
	switch reason {
	case "duplicate", "fraudulent", "requested_by_customer":
		return true
	}
	return false
}

func mapRefundStatus(providerStatus string) storage.RefundStatus {
	switch providerStatus {
	case "succeeded":
		return storage.RefundSucceeded
	case "failed", "canceled":
		return storage.RefundFailed
	default:
		return storage.RefundPending
	}
}

// refundCapturedPayment reverses one card after a partial capture: a full
// system-initiated refund of the captured amount.
func (s *Service) refundCapturedPayment(ctx context.Context, transactionID string, pending session.PendingPayment) error {
	payment, err := s.store.GetPayment(ctx, pending.PaymentID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}

	row := storage.Refund{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		PaymentID:     payment.ID,
		Amount:        payment.Amount,
		Status:        storage.RefundPending,
		Reason:        "capture reversal",
		InitiatedBy:   storage.RefundByAutomatic,
	}
	if err := s.store.CreateRefunds(ctx, []storage.Refund{row}); err != nil {
		return fmt.Errorf("create refund row: %w", err)
	}

	result, err := s.provider.CreateRefund(ctx, payment.ProviderIntentID, payment.Amount, "", map[string]string{
		"transaction_id": transactionID,
		"refund_id":      row.ID,
	})
	if err != nil {
		msg := err.Error()
		if setErr := s.store.SetRefundStatus(ctx, row.ID, storage.RefundFailed, "", &msg); setErr != nil {
			return setErr
		}
		return err
	}

	status := mapRefundStatus(result.Status)
	if err := s.store.SetRefundStatus(ctx, row.ID, status, result.RefundID, nil); err != nil {
		return err
	}
	if status == storage.RefundSucceeded {
		if err := s.store.MarkPaymentRefunded(ctx, payment.ID); err != nil && !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return nil
}

// RetryPendingOrders submits platform orders for transactions whose money
// settled but whose order creation previously failed. Called on a timer.
func (s *Service) RetryPendingOrders(ctx context.Context) {
	log := logger.FromContext(ctx)

	pending, err := s.store.ListCompletedWithoutOrder(ctx, 20)
	if err != nil {
		log.Error().Err(err).Msg("checkout.order_retry.list_failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, txn := range pending {
		shop, err := s.store.GetShopByID(ctx, txn.ShopID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", txn.ID).Msg("checkout.order_retry.load_shop_failed")
			continue
		}
		if !shop.Active {
			continue
		}

		payments, err := s.store.ListPayments(ctx, txn.ID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", txn.ID).Msg("checkout.order_retry.list_payments_failed")
			continue
		}
		cardCount := 0
		for _, p := range payments {
			if p.Status == storage.PaymentCaptured || p.Status == storage.PaymentRefunded {
				cardCount++
			}
		}

		order, err := s.submitOrder(ctx, shop, txn.ID, txn.CheckoutToken, txn.CustomerEmail, txn.TotalAmount, txn.Currency, cardCount)
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", txn.ID).Msg("checkout.order_retry.failed")
			continue
		}
		log.Info().
			Str("transaction_id", txn.ID).
			Int64("order_id", order.ID).
			Msg("checkout.order_retry.submitted")
	}
}
