package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation used in tests and local
// development. It applies the same transition guards as the Postgres store.
type MemoryStore struct {
	mu           sync.RWMutex
	shops        map[string]Shop // keyed by id
	transactions map[string]Transaction
	payments     map[string]Payment
	refunds      map[string]Refund
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shops:        make(map[string]Shop),
		transactions: make(map[string]Transaction),
		payments:     make(map[string]Payment),
		refunds:      make(map[string]Refund),
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// --- Shops ---

func (s *MemoryStore) UpsertShop(_ context.Context, shop Shop) (Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if shop.InstalledAt.IsZero() {
		shop.InstalledAt = now
	}
	for id, existing := range s.shops {
		if existing.ShopDomain == shop.ShopDomain {
			existing.AccessToken = shop.AccessToken
			existing.Active = true
			existing.UninstalledAt = nil
			existing.InstalledAt = shop.InstalledAt
			existing.UpdatedAt = now
			s.shops[id] = existing
			return existing, nil
		}
	}

	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	shop.Active = true
	shop.CreatedAt = now
	shop.UpdatedAt = now
	s.shops[shop.ID] = shop
	return shop, nil
}

func (s *MemoryStore) GetShopByDomain(_ context.Context, domain string) (Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, shop := range s.shops {
		if shop.ShopDomain == domain {
			return shop, nil
		}
	}
	return Shop{}, ErrNotFound
}

func (s *MemoryStore) GetShopByID(_ context.Context, id string) (Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shop, ok := s.shops[id]
	if !ok {
		return Shop{}, ErrNotFound
	}
	return shop, nil
}

func (s *MemoryStore) UpdateShopSettings(_ context.Context, domain string, settings ShopSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, shop := range s.shops {
		if shop.ShopDomain == domain {
			shop.Settings = settings
			shop.UpdatedAt = time.Now().UTC()
			s.shops[id] = shop
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeactivateShop(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, shop := range s.shops {
		if shop.ShopDomain == domain {
			now := time.Now().UTC()
			shop.Active = false
			shop.AccessToken = ""
			shop.UninstalledAt = &now
			shop.UpdatedAt = now
			s.shops[id] = shop
			return nil
		}
	}
	return ErrNotFound
}

// --- Transactions ---

func (s *MemoryStore) CreateTransaction(_ context.Context, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[tx.ID]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.transactions[tx.ID] = tx
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (s *MemoryStore) GetLatestTransactionByCheckout(_ context.Context, shopID, checkoutToken string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *Transaction
	for id := range s.transactions {
		tx := s.transactions[id]
		if tx.ShopID != shopID || tx.CheckoutToken != checkoutToken {
			continue
		}
		if newest == nil || tx.CreatedAt.After(newest.CreatedAt) {
			copied := tx
			newest = &copied
		}
	}
	if newest == nil {
		return Transaction{}, ErrNotFound
	}
	return *newest, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, f TransactionFilter) ([]Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Transaction
	for _, tx := range s.transactions {
		if f.ShopID != "" && tx.ShopID != f.ShopID {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if f.StartDate != nil && tx.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && !tx.CreatedAt.Before(*f.EndDate) {
			continue
		}
		all = append(all, tx)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}
	start := (f.Page - 1) * f.PerPage
	if start >= total {
		return nil, total, nil
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) ClaimTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != TransactionPending {
		return ErrConflict
	}
	tx.Status = TransactionProcessing
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[id] = tx
	return nil
}

func (s *MemoryStore) SetTransactionStatus(_ context.Context, id string, status TransactionStatus, failureReason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	tx.FailureReason = failureReason
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[id] = tx
	return nil
}

func (s *MemoryStore) CompleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != TransactionProcessing {
		return ErrConflict
	}
	now := time.Now().UTC()
	tx.Status = TransactionCompleted
	tx.CompletedAt = &now
	tx.UpdatedAt = now
	s.transactions[id] = tx
	return nil
}

func (s *MemoryStore) SetTransactionOrder(_ context.Context, id string, orderID int64, orderNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	tx.OrderID = &orderID
	tx.OrderNumber = &orderNumber
	tx.UpdatedAt = time.Now().UTC()
	s.transactions[id] = tx
	return nil
}

func (s *MemoryStore) ListCompletedWithoutOrder(_ context.Context, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []Transaction
	for _, tx := range s.transactions {
		if tx.Status == TransactionCompleted && tx.OrderID == nil {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RedactCustomerData(_ context.Context, shopID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, tx := range s.transactions {
		if tx.ShopID != shopID {
			continue
		}
		tx.CustomerEmail = ""
		tx.CustomerIP = ""
		tx.UserAgent = ""
		tx.UpdatedAt = time.Now().UTC()
		s.transactions[id] = tx
		n++
	}
	return n, nil
}

// --- Payments ---

func (s *MemoryStore) CreatePayment(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.ID]; exists {
		return ErrDuplicate
	}
	for _, existing := range s.payments {
		if existing.ProviderIntentID == p.ProviderIntentID {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.payments[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetPaymentByIntentID(_ context.Context, intentID string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.ProviderIntentID == intentID {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

func (s *MemoryStore) ListPayments(_ context.Context, transactionID string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payment
	for _, p := range s.payments {
		if p.TransactionID == transactionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) transitionPayment(id string, allowed []PaymentStatus, apply func(*Payment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ErrNotFound
	}
	permitted := false
	for _, st := range allowed {
		if p.Status == st {
			permitted = true
			break
		}
	}
	if !permitted {
		return ErrConflict
	}
	apply(&p)
	p.UpdatedAt = time.Now().UTC()
	s.payments[id] = p
	return nil
}

func (s *MemoryStore) MarkPaymentAuthorized(_ context.Context, id string, card CardDetails) error {
	return s.transitionPayment(id, []PaymentStatus{PaymentPending}, func(p *Payment) {
		now := time.Now().UTC()
		p.Status = PaymentAuthorized
		p.AuthorizedAt = &now
		p.CardBrand = card.Brand
		p.CardLast4 = card.Last4
		p.CardExpMonth = card.ExpMonth
		p.CardExpYear = card.ExpYear
		if card.MethodID != "" {
			p.ProviderMethodID = card.MethodID
		}
	})
}

func (s *MemoryStore) MarkPaymentCaptured(_ context.Context, id string) error {
	return s.transitionPayment(id, []PaymentStatus{PaymentAuthorized}, func(p *Payment) {
		now := time.Now().UTC()
		p.Status = PaymentCaptured
		p.CapturedAt = &now
	})
}

func (s *MemoryStore) MarkPaymentVoided(_ context.Context, id string) error {
	return s.transitionPayment(id, []PaymentStatus{PaymentPending, PaymentAuthorized}, func(p *Payment) {
		now := time.Now().UTC()
		p.Status = PaymentVoided
		p.VoidedAt = &now
	})
}

func (s *MemoryStore) MarkPaymentFailed(_ context.Context, id string, code, message string) error {
	return s.transitionPayment(id, []PaymentStatus{PaymentPending, PaymentAuthorized}, func(p *Payment) {
		p.Status = PaymentFailed
		p.FailureCode = code
		p.FailureMessage = message
	})
}

func (s *MemoryStore) MarkPaymentCapturedByIntent(_ context.Context, intentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.payments {
		if p.ProviderIntentID != intentID {
			continue
		}
		if p.Status != PaymentAuthorized {
			return false, nil
		}
		now := time.Now().UTC()
		p.Status = PaymentCaptured
		if p.CapturedAt == nil {
			p.CapturedAt = &now
		}
		p.UpdatedAt = now
		s.payments[id] = p
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) MarkPaymentFailedByIntent(_ context.Context, intentID string, code, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.payments {
		if p.ProviderIntentID != intentID {
			continue
		}
		if p.Status != PaymentPending && p.Status != PaymentAuthorized {
			return false, nil
		}
		p.Status = PaymentFailed
		p.FailureCode = code
		p.FailureMessage = message
		p.UpdatedAt = time.Now().UTC()
		s.payments[id] = p
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) MarkPaymentRefunded(_ context.Context, id string) error {
	return s.transitionPayment(id, []PaymentStatus{PaymentCaptured}, func(p *Payment) {
		p.Status = PaymentRefunded
	})
}

// --- Refunds ---

func (s *MemoryStore) CreateRefunds(_ context.Context, refunds []Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range refunds {
		if _, exists := s.refunds[r.ID]; exists {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	for _, r := range refunds {
		r.CreatedAt = now
		r.UpdatedAt = now
		s.refunds[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) ListRefunds(_ context.Context, transactionID string) ([]Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Refund
	for _, r := range s.refunds {
		if r.TransactionID == transactionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SumRefunded(_ context.Context, transactionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, r := range s.refunds {
		if r.TransactionID == transactionID && r.Status == RefundSucceeded {
			sum += r.Amount
		}
	}
	return sum, nil
}

func (s *MemoryStore) SetRefundStatus(_ context.Context, id string, status RefundStatus, providerRefundID string, failureReason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	if providerRefundID != "" {
		r.ProviderRefundID = providerRefundID
	}
	r.FailureReason = failureReason
	r.UpdatedAt = time.Now().UTC()
	s.refunds[id] = r
	return nil
}

func (s *MemoryStore) SetRefundStatusByProviderID(_ context.Context, providerRefundID string, status RefundStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.refunds {
		if r.ProviderRefundID != providerRefundID || r.Status == status {
			continue
		}
		r.Status = status
		r.UpdatedAt = time.Now().UTC()
		s.refunds[id] = r
		return true, nil
	}
	return false, nil
}

// --- Stats ---

func (s *MemoryStore) GetShopStats(_ context.Context, shopID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TransactionsByStatus: make(map[TransactionStatus]int64)}
	txIDs := make(map[string]bool)
	for _, tx := range s.transactions {
		if tx.ShopID != shopID {
			continue
		}
		stats.TransactionsByStatus[tx.Status]++
		txIDs[tx.ID] = true
	}
	for _, p := range s.payments {
		if txIDs[p.TransactionID] && (p.Status == PaymentCaptured || p.Status == PaymentRefunded) {
			stats.CapturedVolume += p.Amount
		}
	}
	for _, r := range s.refunds {
		if txIDs[r.TransactionID] && r.Status == RefundSucceeded {
			stats.RefundedVolume += r.Amount
		}
	}
	return stats, nil
}

var _ Store = (*MemoryStore)(nil)
