package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpay/server/internal/apierrors"
	"github.com/splitpay/server/internal/config"
	"github.com/splitpay/server/internal/session"
	"github.com/splitpay/server/internal/shopify"
	"github.com/splitpay/server/internal/storage"
	"github.com/splitpay/server/internal/stripe"
)

// fakeProvider simulates the card provider in memory. Confirm failures are
// scripted per payment method id, capture failures per intent id, and
// states holds the provider-side status returned by GetAuthorization.
type fakeProvider struct {
	mu       sync.Mutex
	seq      int
	declines map[string]*stripe.ProviderError
	captures map[string]error
	states   map[string]stripe.IntentStatus

	canceled    map[string]bool
	capturedSet map[string]bool
	refunds     []fakeRefund
}

type fakeRefund struct {
	IntentID string
	Amount   int64
	Reason   string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		declines:    make(map[string]*stripe.ProviderError),
		captures:    make(map[string]error),
		states:      make(map[string]stripe.IntentStatus),
		canceled:    make(map[string]bool),
		capturedSet: make(map[string]bool),
	}
}

func (f *fakeProvider) CreateAuthorization(_ context.Context, amountCents int64, currency string, _ map[string]string) (stripe.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("pi_%03d", f.seq)
	return stripe.Authorization{IntentID: id, ClientSecret: id + "_secret", Status: stripe.StatusRequiresConfirmation}, nil
}

func (f *fakeProvider) GetAuthorization(_ context.Context, intentID string) (stripe.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.states[intentID]
	if !ok {
		status = stripe.StatusRequiresConfirmation
	}
	auth := stripe.Authorization{IntentID: intentID, Status: status}
	if status == stripe.StatusRequiresCapture || status == stripe.StatusSucceeded {
		auth.Card = storage.CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
	}
	return auth, nil
}

func (f *fakeProvider) ConfirmAuthorization(_ context.Context, intentID, methodID string) (stripe.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pe, ok := f.declines[methodID]; ok {
		return stripe.Authorization{}, pe
	}
	f.states[intentID] = stripe.StatusRequiresCapture
	return stripe.Authorization{
		IntentID: intentID,
		Status:   stripe.StatusRequiresCapture,
		Card:     storage.CardDetails{Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030, MethodID: methodID},
	}, nil
}

func (f *fakeProvider) CaptureAuthorization(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.captures[intentID]; ok {
		return err
	}
	f.capturedSet[intentID] = true
	return nil
}

func (f *fakeProvider) CancelAuthorization(_ context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled[intentID] = true
	return nil
}

func (f *fakeProvider) CreateRefund(_ context.Context, intentID string, amountCents int64, reason string, _ map[string]string) (stripe.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.refunds = append(f.refunds, fakeRefund{IntentID: intentID, Amount: amountCents, Reason: reason})
	return stripe.RefundResult{RefundID: fmt.Sprintf("re_%03d", f.seq), Status: "succeeded"}, nil
}

func (f *fakeProvider) canceledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.canceled {
		if v {
			n++
		}
	}
	return n
}

// fakePlatform serves a fixed checkout total and records created orders.
type fakePlatform struct {
	mu         sync.Mutex
	totalCents int64
	currency   string
	orderErr   error
	orders     []shopify.OrderRequest
}

func (f *fakePlatform) GetCheckout(_ context.Context, _, _, token string) (shopify.Checkout, error) {
	return shopify.Checkout{Token: token, TotalCents: f.totalCents, Currency: f.currency, Email: "buyer@example.com"}, nil
}

func (f *fakePlatform) CreateOrder(_ context.Context, _, _ string, req shopify.OrderRequest) (shopify.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return shopify.Order{}, f.orderErr
	}
	f.orders = append(f.orders, req)
	return shopify.Order{ID: int64(1000 + len(f.orders)), Number: fmt.Sprintf("#%d", 1000+len(f.orders))}, nil
}

type fixture struct {
	svc      *Service
	store    *storage.MemoryStore
	provider *fakeProvider
	platform *fakePlatform
}

func newFixture(t *testing.T, totalCents int64) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	_, err := store.UpsertShop(context.Background(), storage.Shop{
		ShopDomain:  "demo.myshopify.com",
		AccessToken: "shpat_test",
		Active:      true,
	})
	require.NoError(t, err)

	provider := newFakeProvider()
	platform := &fakePlatform{totalCents: totalCents, currency: "USD"}
	cfg := config.CheckoutConfig{
		SessionTTL:     config.Duration{Duration: time.Minute},
		MaxCards:       5,
		MinAmountCents: 100,
		Currency:       "USD",
	}
	svc := NewService(cfg, store, provider, platform, session.NewStore(time.Minute), nil)
	return &fixture{svc: svc, store: store, provider: provider, platform: platform}
}

const testToken = "abcdefabcdefabcdefabcdefabcdef12"

func (fx *fixture) initCheckout(t *testing.T) InitResult {
	t.Helper()
	res, err := fx.svc.Init(context.Background(), InitRequest{
		ShopDomain:    "demo.myshopify.com",
		CheckoutToken: testToken,
		Email:         "buyer@example.com",
	})
	require.NoError(t, err)
	return res
}

func (fx *fixture) addCard(t *testing.T, sessionID string, amount int64) AddCardResult {
	t.Helper()
	res, err := fx.svc.AddCard(context.Background(), AddCardRequest{SessionID: sessionID, AmountCents: amount})
	require.NoError(t, err)
	return res
}

// card pairs an added intent with the method the buyer will confirm it
// with.
func card(added AddCardResult, methodID string) CardConfirmation {
	return CardConfirmation{IntentID: added.IntentID, MethodID: methodID}
}

func TestInitUsesPlatformTotal(t *testing.T) {
	fx := newFixture(t, 15000)
	res := fx.initCheckout(t)

	assert.Equal(t, int64(15000), res.TotalCents)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, 5, res.MaxCards)

	txn, err := fx.store.GetTransaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionPending, txn.Status)
	assert.Equal(t, int64(15000), txn.TotalAmount)
}

func TestInitReusesPendingTransaction(t *testing.T) {
	fx := newFixture(t, 15000)
	first := fx.initCheckout(t)
	second := fx.initCheckout(t)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestInitRejectsCompletedCheckout(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 5000)
	b := fx.addCard(t, init.SessionID, 5000)
	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")})
	require.NoError(t, err)

	_, err = fx.svc.Init(context.Background(), InitRequest{
		ShopDomain:    "demo.myshopify.com",
		CheckoutToken: testToken,
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeCheckoutFailed, ce.Code)
}

func TestInitRejectsUnknownShop(t *testing.T) {
	fx := newFixture(t, 15000)
	_, err := fx.svc.Init(context.Background(), InitRequest{
		ShopDomain:    "other.myshopify.com",
		CheckoutToken: testToken,
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeStoreNotFound, ce.Code)
}

func TestAddCardEnforcesLimits(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)

	// Below per-card minimum.
	_, err := fx.svc.AddCard(context.Background(), AddCardRequest{SessionID: init.SessionID, AmountCents: 50})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeInvalidAmount, ce.Code)

	// Over the remaining balance.
	_, err = fx.svc.AddCard(context.Background(), AddCardRequest{SessionID: init.SessionID, AmountCents: 10001})
	ce, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeInvalidAmount, ce.Code)

	for i := 0; i < 5; i++ {
		fx.addCard(t, init.SessionID, 1000)
	}
	_, err = fx.svc.AddCard(context.Background(), AddCardRequest{SessionID: init.SessionID, AmountCents: 1000})
	ce, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeTooManyCards, ce.Code)
}

func TestRemoveCardRestoresBalance(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)

	first := fx.addCard(t, init.SessionID, 6000)
	fx.addCard(t, init.SessionID, 4000)

	require.NoError(t, fx.svc.RemoveCard(context.Background(), init.SessionID, first.IntentID))

	p, err := fx.store.GetPayment(context.Background(), first.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, storage.PaymentVoided, p.Status)
	assert.True(t, fx.provider.canceled[first.IntentID])

	replacement := fx.addCard(t, init.SessionID, 6000)
	assert.Equal(t, int64(0), replacement.RemainingCents)

	// Removing an intent that is not in the session is rejected.
	err = fx.svc.RemoveCard(context.Background(), init.SessionID, "pi_unknown")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeTransactionNotFound, ce.Code)
}

func TestCompleteHappyPath(t *testing.T) {
	fx := newFixture(t, 15000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 10000)
	b := fx.addCard(t, init.SessionID, 5000)

	res, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CardCount)
	require.NotNil(t, res.OrderID)

	txn, err := fx.store.GetTransaction(context.Background(), init.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionCompleted, txn.Status)
	require.NotNil(t, txn.OrderID)
	assert.Equal(t, *res.OrderID, *txn.OrderID)

	payments, err := fx.store.ListPayments(context.Background(), init.TransactionID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, p := range payments {
		assert.Equal(t, storage.PaymentCaptured, p.Status)
		assert.Equal(t, "4242", p.CardLast4)
	}

	// The session is consumed.
	_, err = fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeSessionNotFound, ce.Code)
}

func TestCompleteRejectsIncompleteConfirmations(t *testing.T) {
	fx := newFixture(t, 15000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 10000)
	fx.addCard(t, init.SessionID, 5000)

	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1")})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeMissingParams, ce.Code)
}

func TestCompleteRejectsPartialCoverage(t *testing.T) {
	fx := newFixture(t, 15000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 9000)

	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1")})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeInvalidAmount, ce.Code)

	// The transaction was never claimed, so a corrected split still works.
	b := fx.addCard(t, init.SessionID, 6000)
	_, err = fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")})
	require.NoError(t, err)
}

func TestCompleteDeclineReleasesAllHolds(t *testing.T) {
	fx := newFixture(t, 12000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 4000)
	b := fx.addCard(t, init.SessionID, 4000)
	c := fx.addCard(t, init.SessionID, 4000)

	fx.provider.declines["pm_bad"] = &stripe.ProviderError{
		Kind: stripe.KindDeclined, Code: "card_declined", DeclineCode: "insufficient_funds", Message: "Your card has insufficient funds.",
	}

	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{
		card(a, "pm_1"), card(b, "pm_bad"), card(c, "pm_3"),
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeCardDeclined, ce.Code)

	failedCard, ok := ce.Details["failedCard"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, b.IntentID, failedCard["payment_intent_id"])
	assert.Equal(t, "insufficient_funds", failedCard["decline_code"])

	// Every hold is released and nothing is captured.
	assert.Equal(t, 3, fx.provider.canceledCount())
	assert.Empty(t, fx.provider.capturedSet)

	txn, err := fx.store.GetTransaction(context.Background(), init.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionFailed, txn.Status)
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, "Payment failed: Your card has insufficient funds.", *txn.FailureReason)

	payments, err := fx.store.ListPayments(context.Background(), init.TransactionID)
	require.NoError(t, err)
	for _, p := range payments {
		if p.ID == b.PaymentID {
			assert.Equal(t, storage.PaymentFailed, p.Status)
			assert.Equal(t, "card_declined", p.FailureCode)
		} else {
			assert.Equal(t, storage.PaymentVoided, p.Status)
		}
	}
}

func TestCompleteRecordsEveryDecline(t *testing.T) {
	fx := newFixture(t, 12000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 4000)
	b := fx.addCard(t, init.SessionID, 4000)
	c := fx.addCard(t, init.SessionID, 4000)

	fx.provider.declines["pm_bad2"] = &stripe.ProviderError{
		Kind: stripe.KindDeclined, Code: "card_declined", DeclineCode: "insufficient_funds", Message: "Your card has insufficient funds.",
	}
	fx.provider.declines["pm_bad3"] = &stripe.ProviderError{
		Kind: stripe.KindDeclined, Code: "expired_card", Message: "Your card has expired.",
	}

	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{
		card(a, "pm_1"), card(b, "pm_bad2"), card(c, "pm_bad3"),
	})
	require.Error(t, err)

	// Every declining card keeps its own provider detail; only the card
	// that never failed is voided.
	pb, err := fx.store.GetPayment(context.Background(), b.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, storage.PaymentFailed, pb.Status)
	assert.Equal(t, "card_declined", pb.FailureCode)
	assert.Equal(t, "Your card has insufficient funds.", pb.FailureMessage)

	pc, err := fx.store.GetPayment(context.Background(), c.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, storage.PaymentFailed, pc.Status)
	assert.Equal(t, "expired_card", pc.FailureCode)
	assert.Equal(t, "Your card has expired.", pc.FailureMessage)

	pa, err := fx.store.GetPayment(context.Background(), a.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, storage.PaymentVoided, pa.Status)

	txn, err := fx.store.GetTransaction(context.Background(), init.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, "Payment failed: Your card has insufficient funds.", *txn.FailureReason)
}

func TestCompleteTreatsConfirmedIntentAsAuthorized(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 5000)
	b := fx.addCard(t, init.SessionID, 5000)

	// Card b's hold is already in place from an earlier attempt, so the
	// repeat confirm is rejected by the provider.
	fx.provider.declines["pm_2"] = &stripe.ProviderError{
		Kind: stripe.KindInvalid, Code: "payment_intent_unexpected_state", Message: "intent already confirmed",
	}
	fx.provider.states[b.IntentID] = stripe.StatusRequiresCapture

	res, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CardCount)

	payments, err := fx.store.ListPayments(context.Background(), init.TransactionID)
	require.NoError(t, err)
	for _, p := range payments {
		assert.Equal(t, storage.PaymentCaptured, p.Status)
	}
}

func TestCompleteInteractiveCardIsDeclined(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 5000)
	b := fx.addCard(t, init.SessionID, 5000)

	fx.provider.declines["pm_3ds"] = &stripe.ProviderError{
		Kind: stripe.KindInteractiveRequired, Code: "authentication_required", Message: "card requires interactive authentication",
	}

	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_3ds")})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeCardDeclined, ce.Code)
	assert.Contains(t, ce.Message, "interactive")
}

func TestCompleteSingleWinner(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 5000)
	b := fx.addCard(t, init.SessionID, 5000)
	cards := []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")}

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = fx.svc.Complete(context.Background(), init.SessionID, cards)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent complete may win")
}

func TestCompleteCaptureFailureReversesCharges(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	good := fx.addCard(t, init.SessionID, 5000)
	bad := fx.addCard(t, init.SessionID, 5000)

	fx.provider.captures[bad.IntentID] = &stripe.ProviderError{
		Kind: stripe.KindInvalid, Code: "payment_intent_unexpected_state", Message: "intent is not capturable",
	}

	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(good, "pm_1"), card(bad, "pm_2")})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeStripeError, ce.Code)

	// The captured card is refunded in full, the other hold released.
	require.Len(t, fx.provider.refunds, 1)
	assert.Equal(t, good.IntentID, fx.provider.refunds[0].IntentID)
	assert.Equal(t, int64(5000), fx.provider.refunds[0].Amount)
	assert.True(t, fx.provider.canceled[bad.IntentID])

	txn, err := fx.store.GetTransaction(context.Background(), init.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionFailed, txn.Status)
}

func TestCompleteOrderFailureIsDeferred(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 5000)
	b := fx.addCard(t, init.SessionID, 5000)

	fx.platform.orderErr = fmt.Errorf("admin api: 500")

	res, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_2")})
	require.NoError(t, err, "money settled, order failure must not fail the checkout")
	assert.Nil(t, res.OrderID)

	txn, err := fx.store.GetTransaction(context.Background(), init.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionCompleted, txn.Status)
	assert.Nil(t, txn.OrderID)

	// The reconciler picks it up once the platform recovers.
	fx.platform.orderErr = nil
	fx.svc.RetryPendingOrders(context.Background())

	txn, err = fx.store.GetTransaction(context.Background(), init.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.OrderID)
	require.Len(t, fx.platform.orders, 1)
	assert.Equal(t, init.TransactionID, fx.platform.orders[0].TransactionID)
	assert.Equal(t, 2, fx.platform.orders[0].CardCount)
}

func completeCheckout(t *testing.T, fx *fixture, amounts ...int64) InitResult {
	t.Helper()
	init := fx.initCheckout(t)
	var cards []CardConfirmation
	for i, amount := range amounts {
		added := fx.addCard(t, init.SessionID, amount)
		cards = append(cards, card(added, fmt.Sprintf("pm_%d", i+1)))
	}
	_, err := fx.svc.Complete(context.Background(), init.SessionID, cards)
	require.NoError(t, err)
	return init
}

func TestRefundProportionalSplit(t *testing.T) {
	fx := newFixture(t, 3000)
	init := completeCheckout(t, fx, 2000, 1000)

	summary, err := fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID,
		AmountCents:   1500,
		Reason:        "requested_by_customer",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), summary.RefundedCents)
	assert.Equal(t, storage.TransactionPartiallyRefunded, summary.TransactionStatus)

	// 1500 split 2:1 across the cards.
	require.Len(t, summary.Refunds, 2)
	assert.Equal(t, int64(1000), summary.Refunds[0].Amount)
	assert.Equal(t, int64(500), summary.Refunds[1].Amount)
	assert.Equal(t, "requested_by_customer", fx.provider.refunds[0].Reason)
}

func TestRefundRejectsUnknownReason(t *testing.T) {
	fx := newFixture(t, 3000)
	init := completeCheckout(t, fx, 2000, 1000)

	_, err := fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID,
		AmountCents:   100,
		Reason:        "because",
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeMissingParams, ce.Code)
}

func TestRefundFullThenRejectsMore(t *testing.T) {
	fx := newFixture(t, 3000)
	init := completeCheckout(t, fx, 2000, 1000)

	summary, err := fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID,
		AmountCents:   3000,
		Reason:        "requested_by_customer",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionRefunded, summary.TransactionStatus)

	payments, err := fx.store.ListPayments(context.Background(), init.TransactionID)
	require.NoError(t, err)
	for _, p := range payments {
		assert.Equal(t, storage.PaymentRefunded, p.Status)
	}

	_, err = fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID,
		AmountCents:   100,
		Reason:        "requested_by_customer",
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeInvalidAmount, ce.Code)
}

func TestRefundRespectsPriorRefunds(t *testing.T) {
	fx := newFixture(t, 3000)
	init := completeCheckout(t, fx, 2000, 1000)

	_, err := fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID, AmountCents: 2500, Reason: "requested_by_customer",
	})
	require.NoError(t, err)

	_, err = fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID, AmountCents: 1000, Reason: "requested_by_customer",
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeInvalidAmount, ce.Code)
	assert.Equal(t, int64(500), ce.Details["available_cents"])

	summary, err := fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID, AmountCents: 500, Reason: "duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.TransactionRefunded, summary.TransactionStatus)
}

func TestRefundRejectsFailedTransaction(t *testing.T) {
	fx := newFixture(t, 10000)
	init := fx.initCheckout(t)
	a := fx.addCard(t, init.SessionID, 5000)
	b := fx.addCard(t, init.SessionID, 5000)
	fx.provider.declines["pm_bad"] = &stripe.ProviderError{Kind: stripe.KindDeclined, Code: "card_declined"}
	_, err := fx.svc.Complete(context.Background(), init.SessionID, []CardConfirmation{card(a, "pm_1"), card(b, "pm_bad")})
	require.Error(t, err)

	_, err = fx.svc.Refund(context.Background(), RefundRequest{
		TransactionID: init.TransactionID, AmountCents: 1000, Reason: "requested_by_customer",
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrCodeCheckoutFailed, ce.Code)
}
