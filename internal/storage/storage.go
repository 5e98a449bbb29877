package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicate is returned when a uniqueness constraint would be violated,
// e.g. reusing a provider intent id.
var ErrDuplicate = errors.New("storage: duplicate")

// ErrConflict is returned when a guarded state transition finds the row in
// an unexpected state, e.g. two concurrent complete calls racing for the
// same transaction.
var ErrConflict = errors.New("storage: state conflict")

// Store captures the persistence requirements for split-checkout state.
//
// Guarded transitions (ClaimTransaction, the Mark* payment methods) are
// compare-and-set updates: they only fire when the row is in an allowed
// prior state and return ErrConflict otherwise. Webhook-driven *ByIntent
// variants are idempotent instead, reporting whether anything changed.
type Store interface {
	// Shops
	UpsertShop(ctx context.Context, shop Shop) (Shop, error)
	GetShopByDomain(ctx context.Context, domain string) (Shop, error)
	GetShopByID(ctx context.Context, id string) (Shop, error)
	UpdateShopSettings(ctx context.Context, domain string, settings ShopSettings) error
	DeactivateShop(ctx context.Context, domain string) error

	// Transactions
	CreateTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	// GetLatestTransactionByCheckout returns the newest transaction for a
	// shop's checkout token, so init can reuse a pending attempt and reject
	// an already-completed one.
	GetLatestTransactionByCheckout(ctx context.Context, shopID, checkoutToken string) (Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, int, error)
	// ClaimTransaction moves pending -> processing; the loser of a race
	// gets ErrConflict. This is the concurrency guard for complete().
	ClaimTransaction(ctx context.Context, id string) error
	SetTransactionStatus(ctx context.Context, id string, status TransactionStatus, failureReason *string) error
	CompleteTransaction(ctx context.Context, id string) error
	SetTransactionOrder(ctx context.Context, id string, orderID int64, orderNumber string) error
	ListCompletedWithoutOrder(ctx context.Context, limit int) ([]Transaction, error)
	// RedactCustomerData clears buyer PII on all of a shop's transactions.
	RedactCustomerData(ctx context.Context, shopID string) (int64, error)

	// Payments
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (Payment, error)
	ListPayments(ctx context.Context, transactionID string) ([]Payment, error)
	MarkPaymentAuthorized(ctx context.Context, id string, card CardDetails) error
	MarkPaymentCaptured(ctx context.Context, id string) error
	MarkPaymentVoided(ctx context.Context, id string) error
	MarkPaymentFailed(ctx context.Context, id string, code, message string) error
	MarkPaymentCapturedByIntent(ctx context.Context, intentID string) (bool, error)
	MarkPaymentFailedByIntent(ctx context.Context, intentID string, code, message string) (bool, error)
	MarkPaymentRefunded(ctx context.Context, id string) error

	// Refunds
	CreateRefunds(ctx context.Context, refunds []Refund) error
	ListRefunds(ctx context.Context, transactionID string) ([]Refund, error)
	SumRefunded(ctx context.Context, transactionID string) (int64, error)
	SetRefundStatus(ctx context.Context, id string, status RefundStatus, providerRefundID string, failureReason *string) error
	SetRefundStatusByProviderID(ctx context.Context, providerRefundID string, status RefundStatus) (bool, error)

	// Stats
	GetShopStats(ctx context.Context, shopID string) (Stats, error)

	Ping(ctx context.Context) error
	Close() error
}

const defaultQueryTimeout = 5 * time.Second

// withQueryTimeout bounds a query with the default timeout unless the
// caller already set a deadline.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}
