// Package idempotency caches responses for replayed requests carrying an
// Idempotency-Key header. A buyer retrying complete-checkout must get the
// recorded outcome back instead of triggering a second charge attempt.
package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Response is a recorded HTTP outcome.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	RecordedAt time.Time
}

// Store persists recorded responses keyed by scoped idempotency key.
type Store interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, response *Response, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps recorded responses in memory with LRU eviction and a
// background sweep for expired entries.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]*entry
	lru         *list.List
	maxEntries  int
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type entry struct {
	key       string
	response  *Response
	expiresAt time.Time
	element   *list.Element
}

// NewMemoryStore builds a store bounded at 10,000 entries.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithSize(10000)
}

// NewMemoryStoreWithSize builds a store with a custom entry bound.
func NewMemoryStoreWithSize(maxEntries int) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		lru:         list.New(),
		maxEntries:  maxEntries,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Response, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		s.remove(e)
		return nil, false
	}
	s.lru.MoveToFront(e.element)
	return e.response, true
}

func (s *MemoryStore) Set(_ context.Context, key string, response *Response, ttl time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.response = response
		e.expiresAt = now.Add(ttl)
		s.lru.MoveToFront(e.element)
		return nil
	}

	// Evict before inserting so the bound holds even under concurrent Sets.
	if len(s.entries) >= s.maxEntries {
		if back := s.lru.Back(); back != nil {
			s.remove(back.Value.(*entry))
		}
	}

	e := &entry{key: key, response: response, expiresAt: now.Add(ttl)}
	e.element = s.lru.PushFront(e)
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.remove(e)
	}
	return nil
}

// remove expects the lock to be held.
func (s *MemoryStore) remove(e *entry) {
	s.lru.Remove(e.element)
	delete(s.entries, e.key)
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			var expired []*entry
			for _, e := range s.entries {
				if now.After(e.expiresAt) {
					expired = append(expired, e)
				}
			}
			for _, e := range expired {
				s.remove(e)
			}
			s.mu.Unlock()
		}
	}
}

// Stop shuts down the sweep goroutine.
func (s *MemoryStore) Stop() {
	close(s.stopCleanup)
	<-s.cleanupDone
}
