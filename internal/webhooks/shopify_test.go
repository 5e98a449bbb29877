package webhooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpay/server/internal/storage"
)

func TestAppUninstalledDeactivatesShop(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	_, err := store.UpsertShop(ctx, storage.Shop{ShopDomain: "demo.myshopify.com", AccessToken: "tok", Active: true})
	require.NoError(t, err)

	proc := NewShopifyProcessor(store, nil)
	require.NoError(t, proc.Process(ctx, TopicAppUninstalled, "demo.myshopify.com", []byte(`{}`)))

	shop, err := store.GetShopByDomain(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	assert.False(t, shop.Active)

	// Replays and unknown shops are fine.
	require.NoError(t, proc.Process(ctx, TopicAppUninstalled, "demo.myshopify.com", []byte(`{}`)))
	require.NoError(t, proc.Process(ctx, TopicAppUninstalled, "gone.myshopify.com", []byte(`{}`)))
}

func TestRedactClearsCustomerData(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	shop, err := store.UpsertShop(ctx, storage.Shop{ShopDomain: "demo.myshopify.com", AccessToken: "tok", Active: true})
	require.NoError(t, err)

	require.NoError(t, store.CreateTransaction(ctx, storage.Transaction{
		ID:            "txn_1",
		ShopID:        shop.ID,
		CheckoutToken: "tok",
		TotalAmount:   5000,
		Currency:      "USD",
		Status:        storage.TransactionCompleted,
		CustomerEmail: "buyer@example.com",
		CustomerIP:    "203.0.113.9",
	}))

	proc := NewShopifyProcessor(store, nil)
	body := []byte(`{"shop_domain":"demo.myshopify.com"}`)
	require.NoError(t, proc.Process(ctx, TopicShopRedact, "", body))

	txn, err := store.GetTransaction(ctx, "txn_1")
	require.NoError(t, err)
	assert.Empty(t, txn.CustomerEmail)
	assert.Empty(t, txn.CustomerIP)

	// A shop-level redact also revokes the installation.
	got, err := store.GetShopByDomain(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Empty(t, got.AccessToken)
}

func TestCustomersRedactKeepsShopInstalled(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	_, err := store.UpsertShop(ctx, storage.Shop{ShopDomain: "demo.myshopify.com", AccessToken: "tok", Active: true})
	require.NoError(t, err)

	proc := NewShopifyProcessor(store, nil)
	require.NoError(t, proc.Process(ctx, TopicCustomersRedact, "demo.myshopify.com", []byte(`{}`)))

	got, err := store.GetShopByDomain(ctx, "demo.myshopify.com")
	require.NoError(t, err)
	assert.True(t, got.Active, "a customer-level redact must not uninstall the shop")
}

func TestOrdersPaidIsAdvisory(t *testing.T) {
	store := storage.NewMemoryStore()
	proc := NewShopifyProcessor(store, nil)
	require.NoError(t, proc.Process(context.Background(), TopicOrdersPaid, "demo.myshopify.com", []byte(`{"id":42,"name":"#1001"}`)))
}
