package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts GetShopByDomain hits on the backing store.
type countingStore struct {
	Store
	domainLookups atomic.Int64
}

func (c *countingStore) GetShopByDomain(ctx context.Context, domain string) (Shop, error) {
	c.domainLookups.Add(1)
	return c.Store.GetShopByDomain(ctx, domain)
}

func TestShopCacheServesRepeatReadsFromCache(t *testing.T) {
	backing := &countingStore{Store: NewMemoryStore()}
	seedShop(t, backing.Store)
	cached := NewShopCachingStore(backing, time.Minute)

	for i := 0; i < 3; i++ {
		shop, err := cached.GetShopByDomain(context.Background(), "example.myshopify.com")
		require.NoError(t, err)
		assert.Equal(t, "shop-1", shop.ID)
	}
	assert.Equal(t, int64(1), backing.domainLookups.Load())
}

func TestShopCacheDoesNotCacheMisses(t *testing.T) {
	backing := &countingStore{Store: NewMemoryStore()}
	cached := NewShopCachingStore(backing, time.Minute)

	_, err := cached.GetShopByDomain(context.Background(), "missing.myshopify.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cached.GetShopByDomain(context.Background(), "missing.myshopify.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(2), backing.domainLookups.Load())
}

func TestShopCacheInvalidatesOnSettingsUpdate(t *testing.T) {
	backing := &countingStore{Store: NewMemoryStore()}
	seedShop(t, backing.Store)
	cached := NewShopCachingStore(backing, time.Minute)

	shop, err := cached.GetShopByDomain(context.Background(), "example.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, 5, shop.Settings.MaxCards)

	err = cached.UpdateShopSettings(context.Background(), "example.myshopify.com", ShopSettings{
		MaxCards:       3,
		MinAmountCents: 500,
	})
	require.NoError(t, err)

	shop, err = cached.GetShopByDomain(context.Background(), "example.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, 3, shop.Settings.MaxCards)
	assert.Equal(t, int64(2), backing.domainLookups.Load())
}

func TestShopCacheInvalidatesOnDeactivate(t *testing.T) {
	backing := &countingStore{Store: NewMemoryStore()}
	seedShop(t, backing.Store)
	cached := NewShopCachingStore(backing, time.Minute)

	_, err := cached.GetShopByDomain(context.Background(), "example.myshopify.com")
	require.NoError(t, err)

	require.NoError(t, cached.DeactivateShop(context.Background(), "example.myshopify.com"))

	shop, err := cached.GetShopByDomain(context.Background(), "example.myshopify.com")
	require.NoError(t, err)
	assert.False(t, shop.Active)
}
