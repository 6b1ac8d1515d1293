package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store is an in-process ledger of idempotency keys. Entries live for the
// TTL window and are dropped by Sweep.
type Store struct {
	mu        sync.Mutex
	records   map[string]*IdempotencyRecord
	ttlWindow time.Duration // lifetime of a new entry
	nowFunc   func() time.Time
}

// NewStore returns a Store whose entries expire after ttlWindow.
func NewStore(ttlWindow time.Duration) *Store {
	return &Store{
		records:   make(map[string]*IdempotencyRecord),
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ErrUnknownKey is returned when marking a key that was never created or has expired.
var ErrUnknownKey = errors.New("unknown idempotency key")

// CreateIfNotExists creates an IN_PROGRESS entry for key.
// Returns (created=true, nil) if the key was free.
// Returns (created=false, nil) if a live entry exists (caller should Get to inspect).
// A FAILED entry is replaced so that the client may retry.
func (s *Store) CreateIfNotExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if key == "" {
		return false, fmt.Errorf("empty idempotency key")
	}
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok && now.Before(rec.ExpiresAt) && rec.Status != StatusFailed {
		return false, nil
	}
	s.records[key] = &IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow),
	}
	return true, nil
}

// Get retrieves a copy of the entry for key. If absent or expired, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || !now.Before(rec.ExpiresAt) {
		return nil, nil
	}
	return rec.clone(), nil
}

// MarkDone records the response to replay for key.
func (s *Store) MarkDone(ctx context.Context, key, orderID string, responseBody []byte, responseStatus int) error {
	return s.update(ctx, key, func(rec *IdempotencyRecord) {
		rec.Status = StatusDone
		rec.OrderID = orderID
		rec.ResponseBody = append([]byte(nil), responseBody...)
		rec.ResponseStatus = responseStatus
	})
}

// MarkFailed marks the entry FAILED with a note. The next CreateIfNotExists
// for the key succeeds.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.update(ctx, key, func(rec *IdempotencyRecord) {
		rec.Status = StatusFailed
		rec.Note = note
	})
}

func (s *Store) update(ctx context.Context, key string, fn func(rec *IdempotencyRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || !now.Before(rec.ExpiresAt) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	fn(rec)
	rec.UpdatedAt = now
	return nil
}

// Sweep drops entries that expired before now and returns how many.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
