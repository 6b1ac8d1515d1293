package orders

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager enforces the order state machine. It is the only component that
// changes an order's status; every transition is one atomic Store.Update.
type Manager struct {
	store       *Store
	index       *OwnerIndex
	reaper      *Reaper
	createMu    sync.Mutex // serializes the limit check with the insert
	maxActive   int
	expiryAge   time.Duration
	retention   time.Duration
	nowFunc     func() time.Time
	notifier    Notifier
	professions ProfessionChecker
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxActivePerOwner sets the per-owner active order limit.
func WithMaxActivePerOwner(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxActive = n
		}
	}
}

// WithExpiry sets the age after which any order expires and the longer
// window after which terminal orders are purged.
func WithExpiry(age, retention time.Duration) Option {
	return func(m *Manager) {
		if age > 0 {
			m.expiryAge = age
		}
		if retention > 0 {
			m.retention = retention
		}
	}
}

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.nowFunc = now }
}

// WithNotifier sets the receiver of lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithProfessions enables profession-based create/accept restrictions.
func WithProfessions(p ProfessionChecker) Option {
	return func(m *Manager) { m.professions = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager over store and indexes its current contents.
func NewManager(store *Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		index:     NewOwnerIndex(),
		maxActive: DefaultMaxActive,
		expiryAge: DefaultExpiryAge,
		retention: DefaultRetention,
		nowFunc:   time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.index.Rebuild(store.All())
	m.reaper = &Reaper{
		store:     store,
		index:     m.index,
		expiryAge: m.expiryAge,
		retention: m.retention,
		nowFunc:   m.now,
		logger:    m.logger,
		onRemove: func(o Order, at time.Time) {
			m.notify(Event{Type: EventExpired, Order: o, At: at})
		},
	}
	return m
}

// now returns the current time at the millisecond precision that survives
// a snapshot round-trip.
func (m *Manager) now() time.Time {
	return m.nowFunc().UTC().Truncate(time.Millisecond)
}

func (m *Manager) notify(ev Event) {
	if m.notifier != nil {
		m.notifier.Notify(ev)
	}
}

// Store returns the underlying store.
func (m *Manager) Store() *Store { return m.store }

// Reaper returns the expiry sweeper bound to this manager.
func (m *Manager) Reaper() *Reaper { return m.reaper }

// CreateOrder validates req and inserts a new OPEN order owned by owner.
func (m *Manager) CreateOrder(owner Player, req NewOrder) (Order, error) {
	if owner.ID == uuid.Nil {
		return Order{}, fmt.Errorf("%w: missing owner", ErrInvalidOrder)
	}
	if err := req.Validate(); err != nil {
		return Order{}, err
	}
	if m.professions != nil && !m.professions.CanCreate(owner) {
		return Order{}, fmt.Errorf("%w: %s may not create orders", ErrNotPermitted, owner.Name)
	}

	o, err := m.insert(owner, req)
	if err != nil {
		m.logger.Info("order creation rejected", "owner", owner.Name, "error", err)
		return Order{}, err
	}
	m.logger.Info("order created", "order_id", o.ID, "owner", o.OwnerName)
	m.notify(Event{Type: EventCreated, Order: o, Actor: owner, At: o.CreatedAt})
	return o, nil
}

func (m *Manager) insert(owner Player, req NewOrder) (Order, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if active := m.activeCount(owner.ID); active >= m.maxActive {
		return Order{}, fmt.Errorf("%w: %d of %d", ErrLimitReached, active, m.maxActive)
	}
	o := Order{
		ID:               uuid.New(),
		OwnerID:          owner.ID,
		OwnerName:        owner.Name,
		Description:      req.Description,
		RequestItems:     cloneItems(req.RequestItems),
		RewardItems:      cloneItems(req.RewardItems),
		Status:           StatusOpen,
		CreatedAt:        m.now(),
		ExperienceReward: req.ExperienceReward,
	}
	m.store.Put(o)
	m.index.Add(o.OwnerID, o.ID)
	return o, nil
}

// activeCount prunes ids the store no longer holds from the owner's set
// and counts the remaining orders whose status is still active.
func (m *Manager) activeCount(owner uuid.UUID) int {
	active := 0
	m.index.Prune(owner, func(id uuid.UUID) bool {
		o, ok := m.store.Get(id)
		if !ok {
			return false
		}
		if o.Status.Active() {
			active++
		}
		return true
	})
	return active
}

// CanCreate reports whether owner is below the active order limit.
func (m *Manager) CanCreate(owner uuid.UUID) bool {
	return m.activeCount(owner) < m.maxActive
}

// AcceptOrder claims an OPEN order for fulfiller.
func (m *Manager) AcceptOrder(id uuid.UUID, fulfiller Player) (Order, error) {
	if m.professions != nil && !m.professions.CanAccept(fulfiller) {
		return Order{}, fmt.Errorf("%w: %s may not accept orders", ErrNotPermitted, fulfiller.Name)
	}
	now := m.now()
	o, err := m.store.Update(id, func(o *Order) error {
		if o.Status != StatusOpen {
			return fmt.Errorf("%w: %s is %s", ErrStatusMismatch, id, o.Status)
		}
		if o.OwnerID == fulfiller.ID {
			return ErrSelfFulfillment
		}
		o.Status = StatusAccepted
		o.AcceptedByID = fulfiller.ID
		o.AcceptedByName = fulfiller.Name
		o.AcceptedAt = now
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	m.logger.Info("order accepted", "order_id", id, "courier", fulfiller.Name)
	m.notify(Event{Type: EventAccepted, Order: o, Actor: fulfiller, At: now})
	return o, nil
}

// StartOrder marks an accepted order as being worked on by its acceptor.
func (m *Manager) StartOrder(id uuid.UUID, fulfiller Player) (Order, error) {
	o, err := m.store.Update(id, func(o *Order) error {
		if o.Status != StatusAccepted {
			return fmt.Errorf("%w: %s is %s", ErrStatusMismatch, id, o.Status)
		}
		if o.AcceptedByID != fulfiller.ID {
			return ErrNotAcceptor
		}
		o.Status = StatusInProgress
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	m.logger.Info("order in progress", "order_id", id, "courier", fulfiller.Name)
	m.notify(Event{Type: EventStarted, Order: o, Actor: fulfiller, At: m.now()})
	return o, nil
}

// DeclineOrder passes on an OPEN order. Any player may decline.
func (m *Manager) DeclineOrder(id uuid.UUID, fulfiller Player) (Order, error) {
	o, err := m.store.UpdateStatus(id, StatusOpen, StatusDeclined)
	if err != nil {
		return Order{}, err
	}
	m.logger.Info("order declined", "order_id", id, "by", fulfiller.Name)
	m.notify(Event{Type: EventDeclined, Order: o, Actor: fulfiller, At: m.now()})
	return o, nil
}

// CompleteOrder closes an accepted order. A non-nil fulfiller must be the
// acceptor; nil is an administrative force-complete. Paying the reward is
// the caller's job once this returns without error.
func (m *Manager) CompleteOrder(id uuid.UUID, fulfiller *Player) (Order, error) {
	now := m.now()
	o, err := m.store.Update(id, func(o *Order) error {
		if o.Status != StatusAccepted && o.Status != StatusInProgress {
			return fmt.Errorf("%w: %s is %s", ErrStatusMismatch, id, o.Status)
		}
		if fulfiller != nil && o.AcceptedByID != fulfiller.ID {
			return ErrNotAcceptor
		}
		o.Status = StatusCompleted
		o.CompletedAt = now
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	ev := Event{Type: EventCompleted, Order: o, At: now}
	if fulfiller != nil {
		ev.Actor = *fulfiller
		m.logger.Info("order completed", "order_id", id, "courier", fulfiller.Name)
	} else {
		m.logger.Info("order force-completed", "order_id", id)
	}
	m.notify(ev)
	return o, nil
}

// CancelOrder cancels a non-terminal order on behalf of its owner or an admin.
func (m *Manager) CancelOrder(id uuid.UUID, requester Player) (Order, error) {
	o, err := m.store.Update(id, func(o *Order) error {
		if o.OwnerID != requester.ID && !requester.Admin {
			return fmt.Errorf("%w: %s does not own %s", ErrNotPermitted, requester.Name, id)
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrStatusMismatch, id, o.Status)
		}
		o.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	m.logger.Info("order cancelled", "order_id", id, "by", requester.Name)
	m.notify(Event{Type: EventCancelled, Order: o, Actor: requester, At: m.now()})
	return o, nil
}

// DeleteOrder removes an order outright. Administrators only.
func (m *Manager) DeleteOrder(id uuid.UUID, requester Player) (Order, error) {
	if !requester.Admin {
		return Order{}, fmt.Errorf("%w: delete requires admin", ErrNotPermitted)
	}
	o, ok := m.store.Take(id)
	if !ok {
		return Order{}, ErrNotFound
	}
	m.index.Remove(o.OwnerID, o.ID)
	m.logger.Warn("order deleted", "order_id", id, "by", requester.Name)
	m.notify(Event{Type: EventDeleted, Order: o, Actor: requester, At: m.now()})
	return o, nil
}

// GetOrder returns the order with the given id.
func (m *Manager) GetOrder(id uuid.UUID) (Order, error) {
	o, ok := m.store.Get(id)
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// ListAllOrders returns every stored order, newest first.
func (m *Manager) ListAllOrders() []Order {
	out := m.store.All()
	sortByCreated(out)
	return out
}

// ListActiveOrders returns OPEN orders that have not expired, newest first.
func (m *Manager) ListActiveOrders() []Order {
	now := m.now()
	return m.filter(func(o Order) bool {
		return o.Status == StatusOpen && !m.reaper.expired(o, now)
	})
}

// ListOrdersByOwner returns owner's orders, newest first.
func (m *Manager) ListOrdersByOwner(owner uuid.UUID) []Order {
	ids := m.index.IDs(owner)
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := m.store.Get(id); ok {
			out = append(out, o)
		}
	}
	sortByCreated(out)
	return out
}

// ListOrdersByOwnerName returns the orders of every owner whose name
// matches name case-insensitively, newest first.
func (m *Manager) ListOrdersByOwnerName(name string) []Order {
	return m.filter(func(o Order) bool {
		return strings.EqualFold(o.OwnerName, name)
	})
}

// ListOrdersAcceptedBy returns orders fulfiller has accepted, most
// recently accepted first.
func (m *Manager) ListOrdersAcceptedBy(fulfiller uuid.UUID) []Order {
	var out []Order
	m.store.each(func(o Order) {
		if o.AcceptedByID == fulfiller && fulfiller != uuid.Nil {
			out = append(out, o.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.After(out[j].AcceptedAt) })
	return out
}

// VisibleOrders returns the orders shown in p's order board. Couriers see
// open orders and the ones they accepted; other players see their own.
// Without a profession checker a player sees all three groups.
func (m *Manager) VisibleOrders(p Player) []Order {
	if m.professions != nil && !m.professions.IsCourier(p) {
		return m.ListOrdersByOwner(p.ID)
	}
	courierOnly := m.professions != nil
	return m.filter(func(o Order) bool {
		if o.Status == StatusOpen || o.AcceptedByID == p.ID {
			return true
		}
		return !courierOnly && o.OwnerID == p.ID
	})
}

func (m *Manager) filter(keep func(o Order) bool) []Order {
	var out []Order
	m.store.each(func(o Order) {
		if keep(o) {
			out = append(out, o.Clone())
		}
	})
	sortByCreated(out)
	return out
}

func sortByCreated(out []Order) {
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
}

// GetStatistics counts the stored orders by status.
func (m *Manager) GetStatistics() Statistics {
	return Aggregate(m.store)
}

// CleanupExpired runs one expiry sweep and returns the number removed.
func (m *Manager) CleanupExpired() int {
	return m.reaper.Sweep()
}

// ClearAll removes every order. Administrative.
func (m *Manager) ClearAll() int {
	n := m.store.Clear()
	m.index.Clear()
	m.logger.Warn("all orders cleared", "count", n)
	return n
}

// RebuildIndex re-derives the owner index from the store and returns the
// number of owners indexed.
func (m *Manager) RebuildIndex() int {
	m.index.Rebuild(m.store.All())
	return m.index.Owners()
}

// Replace loads the contents of src into the managed store and re-derives
// the owner index. Used when the snapshot is reloaded from disk.
func (m *Manager) Replace(src *Store) int {
	m.createMu.Lock()
	defer m.createMu.Unlock()
	n := m.store.Replace(src)
	m.index.Rebuild(m.store.All())
	m.logger.Info("orders replaced", "count", n)
	return n
}
