package storage

import "time"

// TransactionStatus is the lifecycle state of a split-checkout transaction.
type TransactionStatus string

const (
	TransactionPending           TransactionStatus = "pending"
	TransactionProcessing        TransactionStatus = "processing"
	TransactionCompleted         TransactionStatus = "completed"
	TransactionFailed            TransactionStatus = "failed"
	TransactionPartiallyRefunded TransactionStatus = "partially_refunded"
	TransactionRefunded          TransactionStatus = "refunded"
)

// PaymentStatus is the lifecycle state of a single card payment.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentVoided     PaymentStatus = "voided"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// IsTerminal reports whether no further transitions are allowed from s.
// Captured payments may still move to refunded.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentVoided, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// CanTransition reports whether a payment may move from s to next. Statuses
// never regress: once captured a payment can only become refunded, and
// terminal states admit nothing.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentAuthorized || next == PaymentFailed || next == PaymentVoided
	case PaymentAuthorized:
		return next == PaymentCaptured || next == PaymentVoided || next == PaymentFailed
	case PaymentCaptured:
		return next == PaymentRefunded
	default:
		return false
	}
}

// RefundStatus is the state of a single proportional refund row.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// RefundInitiator identifies who requested a refund.
type RefundInitiator string

const (
	RefundByAdmin     RefundInitiator = "admin"
	RefundByWebhook   RefundInitiator = "webhook"
	RefundByAutomatic RefundInitiator = "automatic"
)

// ShopSettings carries per-shop split rules, stored as JSONB.
type ShopSettings struct {
	MaxCards       int   `json:"max_cards"`
	MinAmountCents int64 `json:"min_amount_cents"`
}

// Shop is an installed merchant store.
type Shop struct {
	ID            string
	ShopDomain    string
	AccessToken   string
	Settings      ShopSettings
	Active        bool
	InstalledAt   time.Time
	UninstalledAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction is one split checkout: a single order paid by several cards.
type Transaction struct {
	ID            string
	ShopID        string
	CheckoutToken string
	OrderID       *int64
	OrderNumber   *string
	TotalAmount   int64
	Currency      string
	Status        TransactionStatus
	CustomerEmail string
	CustomerIP    string
	UserAgent     string
	FailureReason *string
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is one card's slice of a transaction, backed by a provider
// payment intent.
type Payment struct {
	ID               string
	TransactionID    string
	ProviderIntentID string
	ProviderMethodID string
	Amount           int64
	Status           PaymentStatus
	CardBrand        string
	CardLast4        string
	CardExpMonth     int
	CardExpYear      int
	FailureCode      string
	FailureMessage   string
	AuthorizedAt     *time.Time
	CapturedAt       *time.Time
	VoidedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CardDetails captures the presentation fields recorded after a successful
// authorization. Never holds PAN data.
type CardDetails struct {
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
	MethodID string
}

// Refund is one payment's proportional share of a refund request.
type Refund struct {
	ID               string
	TransactionID    string
	PaymentID        string
	ProviderRefundID string
	Amount           int64
	Status           RefundStatus
	Reason           string
	InitiatedBy      RefundInitiator
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TransactionFilter selects transactions for admin listings. Date bounds
// apply to created_at; StartDate is inclusive, EndDate exclusive.
type TransactionFilter struct {
	ShopID    string
	Status    TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PerPage   int
}

// Stats aggregates per-shop volume for the admin dashboard.
type Stats struct {
	TransactionsByStatus map[TransactionStatus]int64
	CapturedVolume       int64
	RefundedVolume       int64
}
