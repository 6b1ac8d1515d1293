package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Store is the authoritative in-memory table of orders. Every method is
// safe for concurrent use; values returned to callers are deep copies.
type Store struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
	dirty  atomic.Bool
	logger *slog.Logger
}

// NewStore creates an empty Store. A nil logger uses slog.Default().
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		orders: make(map[uuid.UUID]*Order),
		logger: logger,
	}
}

// Put inserts or replaces o and marks the store dirty. It does not validate.
func (s *Store) Put(o Order) {
	c := o.Clone()
	s.mu.Lock()
	s.orders[c.ID] = &c
	s.mu.Unlock()
	s.dirty.Store(true)
}

// Get returns the order with the given id.
func (s *Store) Get(id uuid.UUID) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return o.Clone(), true
}

// All returns a copy of every order, safe to use without holding the lock.
func (s *Store) All() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	return out
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Remove deletes the order with the given id and reports whether it existed.
func (s *Store) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	_, ok := s.orders[id]
	delete(s.orders, id)
	s.mu.Unlock()
	if ok {
		s.dirty.Store(true)
	}
	return ok
}

// Take removes the order with the given id and returns it.
func (s *Store) Take(id uuid.UUID) (Order, bool) {
	s.mu.Lock()
	o, ok := s.orders[id]
	delete(s.orders, id)
	s.mu.Unlock()
	if !ok {
		return Order{}, false
	}
	s.dirty.Store(true)
	return *o, true
}

// Clear removes every order and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.orders)
	s.orders = make(map[uuid.UUID]*Order)
	s.mu.Unlock()
	s.dirty.Store(true)
	return n
}

// Replace swaps the contents of s for those of src and returns the new
// order count. The store is left clean since it now matches src's origin.
func (s *Store) Replace(src *Store) int {
	src.mu.RLock()
	next := make(map[uuid.UUID]*Order, len(src.orders))
	for id, o := range src.orders {
		c := o.Clone()
		next[id] = &c
	}
	src.mu.RUnlock()

	s.mu.Lock()
	s.orders = next
	s.mu.Unlock()
	s.dirty.Store(false)
	return len(next)
}

// Update runs fn against a copy of the order under the write lock and
// commits the copy only if fn returns nil. The precondition check inside
// fn and the write are therefore a single atomic step.
func (s *Store) Update(id uuid.UUID, fn func(o *Order) error) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return Order{}, err
	}
	s.orders[id] = &next
	s.dirty.Store(true)
	return next.Clone(), nil
}

// UpdateStatus moves the order from expected to newStatus.
// Returns ErrStatusMismatch if the current status is not expected.
func (s *Store) UpdateStatus(id uuid.UUID, expected, newStatus Status) (Order, error) {
	return s.Update(id, func(o *Order) error {
		if o.Status != expected {
			return fmt.Errorf("%w: %s is %s, want %s", ErrStatusMismatch, id, o.Status, expected)
		}
		o.Status = newStatus
		return nil
	})
}

// each calls fn for every order while holding the read lock. fn must not
// retain or modify the value's slices.
func (s *Store) each(fn func(o Order)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		fn(*o)
	}
}

// Dirty reports whether the store changed since the last TakeDirty.
func (s *Store) Dirty() bool { return s.dirty.Load() }

// MarkDirty forces the next flush to write a snapshot.
func (s *Store) MarkDirty() { s.dirty.Store(true) }

// TakeDirty clears the dirty flag and returns its previous value.
func (s *Store) TakeDirty() bool { return s.dirty.Swap(false) }

const snapshotVersion = 1

// snapshotEnvelope wraps individually encoded records so that a corrupt
// record can be skipped without losing the rest of the snapshot.
type snapshotEnvelope struct {
	Version int      `cbor:"version"`
	Codec   string   `cbor:"codec"`
	SavedAt int64    `cbor:"saved_at"`
	Orders  [][]byte `cbor:"orders"`
}

// LoadReport summarizes a snapshot load.
type LoadReport struct {
	Loaded  int
	Skipped int
}

// SaveReport summarizes a snapshot serialization.
type SaveReport struct {
	Written int
	Omitted int
}

// ErrCorruptSnapshot is returned when the snapshot envelope itself cannot
// be decoded. Individual bad records never produce it.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// LoadSnapshot reconstructs a Store from data produced by SerializeSnapshot.
// Malformed, invalid or duplicate records are logged and skipped.
func LoadSnapshot(data []byte, logger *slog.Logger) (*Store, LoadReport, error) {
	s := NewStore(logger)
	var report LoadReport
	if len(data) == 0 {
		return s, report, nil
	}

	var env snapshotEnvelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, report, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if env.Version > snapshotVersion {
		return nil, report, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, env.Version)
	}
	codec, err := CodecByName(env.Codec)
	if err != nil {
		return nil, report, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	s.logger.Info("loading order snapshot", "records", len(env.Orders), "codec", codec.Name())
	for i, raw := range env.Orders {
		var rec Record
		if err := codec.Unmarshal(raw, &rec); err != nil {
			s.logger.Error("skipping undecodable order record", "index", i, "error", err)
			report.Skipped++
			continue
		}
		o, err := FromRecord(rec)
		if err == nil {
			err = o.Validate()
		}
		if err != nil {
			s.logger.Error("skipping malformed order record", "index", i, "id", rec.ID, "error", err)
			report.Skipped++
			continue
		}
		if _, dup := s.orders[o.ID]; dup {
			s.logger.Error("skipping duplicate order record", "index", i, "id", o.ID)
			report.Skipped++
			continue
		}
		s.orders[o.ID] = &o
		report.Loaded++
	}
	s.logger.Info("order snapshot loaded", "loaded", report.Loaded, "skipped", report.Skipped)
	return s, report, nil
}

// SerializeSnapshot encodes every current order with codec. The orders are
// copied under the read lock and encoded after it is released. A record
// that fails to encode is logged and omitted.
func (s *Store) SerializeSnapshot(codec Codec) ([]byte, SaveReport, error) {
	var report SaveReport
	all := s.All()
	env := snapshotEnvelope{
		Version: snapshotVersion,
		Codec:   codec.Name(),
		SavedAt: time.Now().UnixMilli(),
		Orders:  make([][]byte, 0, len(all)),
	}
	for _, o := range all {
		raw, err := codec.Marshal(ToRecord(o))
		if err != nil {
			s.logger.Error("omitting order from snapshot", "id", o.ID, "error", err)
			report.Omitted++
			continue
		}
		env.Orders = append(env.Orders, raw)
		report.Written++
	}
	data, err := encMode.Marshal(env)
	if err != nil {
		return nil, report, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, report, nil
}
