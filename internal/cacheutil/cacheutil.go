// Package cacheutil holds small helpers for building cached repositories.
package cacheutil

import (
	"sync"
	"time"
)

// Entry is a cached value with the time it was fetched.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Fresh reports whether the entry is still within ttl at the given time.
func (e Entry[T]) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// ReadThrough checks the cache under a read lock and falls back to
// fetchAndCache under the write lock on a miss. The cache is re-checked
// after the write lock is acquired, with a fresh timestamp, so a value
// populated by a racing goroutine is not fetched twice or treated as
// already expired.
func ReadThrough[T any](
	mu *sync.RWMutex,
	checkCache func(now time.Time) (T, bool),
	fetchAndCache func(now time.Time) (T, error),
) (T, error) {
	now := time.Now()
	mu.RLock()
	if value, ok := checkCache(now); ok {
		mu.RUnlock()
		return value, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	now = time.Now()
	if value, ok := checkCache(now); ok {
		return value, nil
	}
	return fetchAndCache(now)
}

// WriteThrough runs a write operation and invalidates the cache only when
// the write succeeds.
func WriteThrough(invalidate func(), operation func() error) error {
	if err := operation(); err != nil {
		return err
	}
	invalidate()
	return nil
}
