package session

import (
	"sync"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore(time.Minute)

	sess, err := store.Create("txn_1", "demo.myshopify.com", "tok", "USD", "buyer@example.com", 15000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sess.ID) != 32 {
		t.Fatalf("session id length = %d, want 32 hex chars", len(sess.ID))
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TransactionID != "txn_1" || got.TotalCents != 15000 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Remaining() != 15000 {
		t.Fatalf("Remaining = %d, want 15000", got.Remaining())
	}
}

func TestGetUnknown(t *testing.T) {
	store := NewStore(time.Minute)
	if _, err := store.Get("nope"); err != ErrNotFound {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestExpiry(t *testing.T) {
	store := NewStore(20 * time.Millisecond)
	sess, err := store.Create("txn_1", "demo.myshopify.com", "tok", "USD", "", 1000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := store.Get(sess.ID); err != ErrNotFound {
		t.Fatalf("expired session Get = %v, want ErrNotFound", err)
	}
}

func TestUpdateIsolation(t *testing.T) {
	store := NewStore(time.Minute)
	sess, _ := store.Create("txn_1", "demo.myshopify.com", "tok", "USD", "", 10000)

	updated, err := store.Update(sess.ID, func(s *Session) error {
		s.Payments = append(s.Payments, PendingPayment{PaymentID: "pay_1", IntentID: "pi_1", AmountCents: 4000})
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Remaining() != 6000 {
		t.Fatalf("Remaining = %d, want 6000", updated.Remaining())
	}

	// Mutating the returned snapshot must not touch the stored session.
	updated.Payments[0].AmountCents = 1

	got, _ := store.Get(sess.ID)
	if got.Payments[0].AmountCents != 4000 {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	store := NewStore(time.Minute)
	sess, _ := store.Create("txn_1", "demo.myshopify.com", "tok", "USD", "", 10000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(sess.ID, func(s *Session) error {
				s.Payments = append(s.Payments, PendingPayment{AmountCents: 1})
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(sess.ID)
	if len(got.Payments) != 20 {
		t.Fatalf("payments = %d, want 20", len(got.Payments))
	}
}
