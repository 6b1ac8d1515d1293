package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(ttl)
	s.nowFunc = func() time.Time { return now }
	return s, &now
}

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	s, _ := newTestStore(10 * time.Minute)
	ctx := context.Background()
	key := "player-1:test-key-1"

	created, err := s.CreateIfNotExists(ctx, key)
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key)
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil || rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS record, got %+v", rec)
	}

	body := []byte(`{"ok":true}`)
	if err := s.MarkDone(ctx, key, "order-123", body, 200); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	body[0] = 'X'

	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusDone || rec.OrderID != "order-123" || rec.ResponseStatus != 200 {
		t.Fatalf("record not updated to DONE: %+v", rec)
	}
	if string(rec.ResponseBody) != `{"ok":true}` {
		t.Fatalf("response body not copied, got %s", rec.ResponseBody)
	}
	rec.ResponseBody[0] = 'Y'
	again, _ := s.Get(ctx, key)
	if again.ResponseBody[0] != '{' {
		t.Fatalf("Get returned shared response body")
	}

	if err := s.MarkFailed(ctx, key, "failed-reason"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusFailed || rec.Note != "failed-reason" {
		t.Fatalf("record not marked FAILED: %+v", rec)
	}

	// a failed key may be retried
	created3, err := s.CreateIfNotExists(ctx, key)
	if err != nil || !created3 {
		t.Fatalf("expected retry after failure to create, got %v %v", created3, err)
	}
}

func TestMarkUnknownKey(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	err := s.MarkDone(context.Background(), "nope", "", nil, 200)
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestExpiryAndSweep(t *testing.T) {
	s, now := newTestStore(time.Minute)
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, "a"); err != nil {
		t.Fatalf("create: %v", err)
	}
	*now = now.Add(30 * time.Second)
	if _, err := s.CreateIfNotExists(ctx, "b"); err != nil {
		t.Fatalf("create: %v", err)
	}

	*now = now.Add(31 * time.Second)
	if rec, _ := s.Get(ctx, "a"); rec != nil {
		t.Fatalf("expired record still visible: %+v", rec)
	}
	if rec, _ := s.Get(ctx, "b"); rec == nil {
		t.Fatalf("live record hidden")
	}
	created, _ := s.CreateIfNotExists(ctx, "a")
	if !created {
		t.Fatalf("expired key should be reusable")
	}

	*now = now.Add(2 * time.Minute)
	if n := s.Sweep(*now); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
	if s.Len() != 0 {
		t.Fatalf("ledger not empty after sweep")
	}
}

func TestCancelledContext(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.CreateIfNotExists(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	if _, err := s.CreateIfNotExists(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
