package storage

import (
	"context"
	"sync"
	"time"

	"github.com/splitpay/server/internal/cacheutil"
)

// ShopCachingStore decorates a Store with a short-lived cache over shop
// lookups by domain. Every widget and admin request resolves the shop row,
// so the cache keeps that read off the database on the hot path. Writes to
// shop rows go through to the backing store and invalidate the domain.
type ShopCachingStore struct {
	Store

	ttl      time.Duration
	mu       sync.RWMutex
	byDomain map[string]cacheutil.Entry[Shop]
}

// NewShopCachingStore wraps store with a shop lookup cache. A non-positive
// ttl falls back to 30 seconds.
func NewShopCachingStore(store Store, ttl time.Duration) *ShopCachingStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ShopCachingStore{
		Store:    store,
		ttl:      ttl,
		byDomain: make(map[string]cacheutil.Entry[Shop]),
	}
}

func (s *ShopCachingStore) GetShopByDomain(ctx context.Context, domain string) (Shop, error) {
	return cacheutil.ReadThrough(
		&s.mu,
		func(now time.Time) (Shop, bool) {
			if entry, ok := s.byDomain[domain]; ok && entry.Fresh(now, s.ttl) {
				return entry.Value, true
			}
			return Shop{}, false
		},
		func(now time.Time) (Shop, error) {
			shop, err := s.Store.GetShopByDomain(ctx, domain)
			if err != nil {
				return Shop{}, err
			}
			s.byDomain[domain] = cacheutil.Entry[Shop]{Value: shop, FetchedAt: now}
			return shop, nil
		},
	)
}

func (s *ShopCachingStore) UpsertShop(ctx context.Context, shop Shop) (Shop, error) {
	var saved Shop
	err := cacheutil.WriteThrough(
		func() { s.invalidate(shop.ShopDomain) },
		func() error {
			var err error
			saved, err = s.Store.UpsertShop(ctx, shop)
			return err
		},
	)
	return saved, err
}

func (s *ShopCachingStore) UpdateShopSettings(ctx context.Context, domain string, settings ShopSettings) error {
	return cacheutil.WriteThrough(
		func() { s.invalidate(domain) },
		func() error {
			return s.Store.UpdateShopSettings(ctx, domain, settings)
		},
	)
}

func (s *ShopCachingStore) DeactivateShop(ctx context.Context, domain string) error {
	return cacheutil.WriteThrough(
		func() { s.invalidate(domain) },
		func() error {
			return s.Store.DeactivateShop(ctx, domain)
		},
	)
}

func (s *ShopCachingStore) invalidate(domain string) {
	s.mu.Lock()
	delete(s.byDomain, domain)
	s.mu.Unlock()
}
