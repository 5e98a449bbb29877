package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedShop(t *testing.T, s Store) Shop {
	t.Helper()
	shop, err := s.UpsertShop(context.Background(), Shop{
		ID:          "shop-1",
		ShopDomain:  "example.myshopify.com",
		AccessToken: "shpat_token",
		Settings:    ShopSettings{MaxCards: 5, MinAmountCents: 100},
		InstalledAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return shop
}

func seedTransaction(t *testing.T, s Store, shopID string) Transaction {
	t.Helper()
	tx := Transaction{
		ID:            "tx-1",
		ShopID:        shopID,
		CheckoutToken: "abcdefabcdefabcdefabcdefabcdef12",
		TotalAmount:   15000,
		Currency:      "USD",
		Status:        TransactionPending,
		CustomerEmail: "buyer@example.com",
	}
	require.NoError(t, s.CreateTransaction(context.Background(), tx))
	return tx
}

func TestUpsertShopReinstall(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	shop := seedShop(t, s)
	require.NoError(t, s.DeactivateShop(ctx, shop.ShopDomain))

	got, err := s.GetShopByDomain(ctx, shop.ShopDomain)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Empty(t, got.AccessToken)
	assert.NotNil(t, got.UninstalledAt)

	reinstalled, err := s.UpsertShop(ctx, Shop{
		ID:          "shop-other-id",
		ShopDomain:  shop.ShopDomain,
		AccessToken: "shpat_new",
		InstalledAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, shop.ID, reinstalled.ID, "reinstall must reuse the existing row")
	assert.True(t, reinstalled.Active)
	assert.Equal(t, "shpat_new", reinstalled.AccessToken)
	assert.Nil(t, reinstalled.UninstalledAt)
}

func TestUpsertShopGeneratesIdentity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Installs arrive from the OAuth callback with domain and token only.
	first, err := s.UpsertShop(ctx, Shop{ShopDomain: "a.myshopify.com", AccessToken: "shpat_a"})
	require.NoError(t, err)
	second, err := s.UpsertShop(ctx, Shop{ShopDomain: "b.myshopify.com", AccessToken: "shpat_b"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.InstalledAt.IsZero())

	// The second install must not displace the first.
	got, err := s.GetShopByDomain(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "shpat_a", got.AccessToken)
}

func TestClaimTransactionSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	shop := seedShop(t, s)
	tx := seedTransaction(t, s, shop.ID)

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ClaimTransaction(ctx, tx.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one caller may claim a pending transaction")

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TransactionProcessing, got.Status)
}

func TestPaymentTransitionGuards(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	shop := seedShop(t, s)
	tx := seedTransaction(t, s, shop.ID)

	p := Payment{
		ID:               "pay-1",
		TransactionID:    tx.ID,
		ProviderIntentID: "pi_test_1",
		Amount:           7000,
		Status:           PaymentPending,
	}
	require.NoError(t, s.CreatePayment(ctx, p))

	// Duplicate intent id is rejected.
	err := s.CreatePayment(ctx, Payment{
		ID: "pay-2", TransactionID: tx.ID, ProviderIntentID: "pi_test_1",
		Amount: 1, Status: PaymentPending,
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Cannot capture before authorize.
	assert.ErrorIs(t, s.MarkPaymentCaptured(ctx, p.ID), ErrConflict)

	card := CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030, MethodID: "pm_abc"}
	require.NoError(t, s.MarkPaymentAuthorized(ctx, p.ID, card))
	require.NoError(t, s.MarkPaymentCaptured(ctx, p.ID))

	// Captured never regresses.
	assert.ErrorIs(t, s.MarkPaymentVoided(ctx, p.ID), ErrConflict)
	assert.ErrorIs(t, s.MarkPaymentFailed(ctx, p.ID, "card_declined", "nope"), ErrConflict)

	got, err := s.GetPaymentByIntentID(ctx, "pi_test_1")
	require.NoError(t, err)
	assert.Equal(t, PaymentCaptured, got.Status)
	assert.Equal(t, "visa", got.CardBrand)
	assert.NotNil(t, got.CapturedAt)
}

func TestMarkPaymentCapturedByIntentIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	shop := seedShop(t, s)
	tx := seedTransaction(t, s, shop.ID)

	p := Payment{
		ID: "pay-1", TransactionID: tx.ID, ProviderIntentID: "pi_test_1",
		Amount: 7000, Status: PaymentPending,
	}
	require.NoError(t, s.CreatePayment(ctx, p))
	require.NoError(t, s.MarkPaymentAuthorized(ctx, p.ID, CardDetails{}))

	changed, err := s.MarkPaymentCapturedByIntent(ctx, "pi_test_1")
	require.NoError(t, err)
	assert.True(t, changed)

	// Replayed webhook is a no-op, not an error.
	changed, err = s.MarkPaymentCapturedByIntent(ctx, "pi_test_1")
	require.NoError(t, err)
	assert.False(t, changed)

	// Late failure event must not regress the captured payment.
	changed, err = s.MarkPaymentFailedByIntent(ctx, "pi_test_1", "card_declined", "late event")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentCaptured, got.Status)
}

func TestRefundAccounting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	shop := seedShop(t, s)
	tx := seedTransaction(t, s, shop.ID)

	refunds := []Refund{
		{ID: "rf-1", TransactionID: tx.ID, PaymentID: "pay-1", Amount: 2000, Status: RefundPending, InitiatedBy: RefundByAdmin},
		{ID: "rf-2", TransactionID: tx.ID, PaymentID: "pay-2", Amount: 1000, Status: RefundPending, InitiatedBy: RefundByAdmin},
	}
	require.NoError(t, s.CreateRefunds(ctx, refunds))

	sum, err := s.SumRefunded(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum, "pending refunds do not count")

	require.NoError(t, s.SetRefundStatus(ctx, "rf-1", RefundSucceeded, "re_1", nil))
	reason := "insufficient balance"
	require.NoError(t, s.SetRefundStatus(ctx, "rf-2", RefundFailed, "", &reason))

	sum, err = s.SumRefunded(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), sum)

	changed, err := s.SetRefundStatusByProviderID(ctx, "re_1", RefundSucceeded)
	require.NoError(t, err)
	assert.False(t, changed, "same status is a no-op")

	changed, err = s.SetRefundStatusByProviderID(ctx, "re_unknown", RefundSucceeded)
	require.NoError(t, err)
	assert.False(t, changed, "unknown provider refund id is swallowed")
}

func TestListCompletedWithoutOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	shop := seedShop(t, s)
	tx := seedTransaction(t, s, shop.ID)

	require.NoError(t, s.ClaimTransaction(ctx, tx.ID))
	require.NoError(t, s.CompleteTransaction(ctx, tx.ID))

	missing, err := s.ListCompletedWithoutOrder(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, tx.ID, missing[0].ID)

	require.NoError(t, s.SetTransactionOrder(ctx, tx.ID, 880055, "#1001"))

	missing, err = s.ListCompletedWithoutOrder(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRedactCustomerData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	shop := seedShop(t, s)
	seedTransaction(t, s, shop.ID)

	n, err := s.RedactCustomerData(ctx, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Empty(t, got.CustomerEmail)
	assert.Empty(t, got.CustomerIP)
	assert.Empty(t, got.UserAgent)
}
