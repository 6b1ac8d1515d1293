package orders

import (
	"sync"

	"github.com/google/uuid"
)

// OwnerIndex maps an owner to the ids of the orders they created. It is
// advisory: the Store is the source of truth and the index can always be
// rebuilt from it.
type OwnerIndex struct {
	mu      sync.RWMutex
	byOwner map[uuid.UUID]map[uuid.UUID]struct{}
}

// NewOwnerIndex returns an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{byOwner: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

// Add records that owner created order id.
func (x *OwnerIndex) Add(owner, id uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.byOwner[owner]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		x.byOwner[owner] = set
	}
	set[id] = struct{}{}
}

// Remove drops id from owner's set, deleting the set when it empties.
func (x *OwnerIndex) Remove(owner, id uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(owner, id)
}

func (x *OwnerIndex) removeLocked(owner, id uuid.UUID) {
	set, ok := x.byOwner[owner]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(x.byOwner, owner)
	}
}

// IDs returns the ids tracked for owner.
func (x *OwnerIndex) IDs(owner uuid.UUID) []uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set := x.byOwner[owner]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Prune removes every id of owner for which keep returns false and
// returns the ids that remain.
func (x *OwnerIndex) Prune(owner uuid.UUID, keep func(id uuid.UUID) bool) []uuid.UUID {
	x.mu.Lock()
	defer x.mu.Unlock()
	set := x.byOwner[owner]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		if !keep(id) {
			x.removeLocked(owner, id)
			continue
		}
		out = append(out, id)
	}
	return out
}

// Owners returns the number of owners with at least one tracked order.
func (x *OwnerIndex) Owners() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byOwner)
}

// Rebuild replaces the index contents with the owners of orders.
func (x *OwnerIndex) Rebuild(orders []Order) {
	byOwner := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, o := range orders {
		set, ok := byOwner[o.OwnerID]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			byOwner[o.OwnerID] = set
		}
		set[o.ID] = struct{}{}
	}
	x.mu.Lock()
	x.byOwner = byOwner
	x.mu.Unlock()
}

// Clear empties the index.
func (x *OwnerIndex) Clear() {
	x.mu.Lock()
	x.byOwner = make(map[uuid.UUID]map[uuid.UUID]struct{})
	x.mu.Unlock()
}
