// Package session keeps the short-lived checkout state between the widget's
// init call and completion. Sessions live in process memory with a TTL; the
// durable record is the transaction row, so losing a session only forces the
// buyer to restart the checkout.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session: not found")

// PendingPayment is one card's share as known to the session.
type PendingPayment struct {
	PaymentID   string
	IntentID    string
	AmountCents int64
}

// Session is the in-flight checkout state.
type Session struct {
	ID            string
	TransactionID string
	ShopDomain    string
	CheckoutToken string
	TotalCents    int64
	Currency      string
	Email         string
	Payments      []PendingPayment
	ExpiresAt     time.Time
}

// Remaining is the amount not yet covered by pending payments.
func (s *Session) Remaining() int64 {
	total := s.TotalCents
	for _, p := range s.Payments {
		total -= p.AmountCents
	}
	return total
}

// Store holds sessions with automatic expiry. Mutations go through the
// store so concurrent widget calls on the same session serialize here.
type Store struct {
	mu    sync.Mutex
	cache *gocache.Cache
	ttl   time.Duration
}

// NewStore builds a session store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		cache: gocache.New(ttl, 5*time.Minute),
		ttl:   ttl,
	}
}

func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create opens a new session and returns it.
func (s *Store) Create(transactionID, shopDomain, checkoutToken, currency, email string, totalCents int64) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:            id,
		TransactionID: transactionID,
		ShopDomain:    shopDomain,
		CheckoutToken: checkoutToken,
		TotalCents:    totalCents,
		Currency:      currency,
		Email:         email,
		ExpiresAt:     time.Now().Add(s.ttl),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(id, sess, s.ttl)
	return copySession(sess), nil
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return copySession(sess), nil
}

// Update applies fn to the session under the store lock and returns the
// updated snapshot.
func (s *Store) Update(id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	s.cache.Set(id, sess, time.Until(sess.ExpiresAt))
	return copySession(sess), nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(id)
}

func (s *Store) get(id string) (*Session, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	sess := v.(*Session)
	if time.Now().After(sess.ExpiresAt) {
		s.cache.Delete(id)
		return nil, ErrNotFound
	}
	return sess, nil
}

func copySession(sess *Session) *Session {
	out := *sess
	out.Payments = append([]PendingPayment(nil), sess.Payments...)
	return &out
}
