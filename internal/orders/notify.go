package orders

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle change.
type EventType string

const (
	EventCreated   EventType = "order.created"
	EventAccepted  EventType = "order.accepted"
	EventStarted   EventType = "order.started"
	EventDeclined  EventType = "order.declined"
	EventCompleted EventType = "order.completed"
	EventCancelled EventType = "order.cancelled"
	EventDeleted   EventType = "order.deleted"
	EventExpired   EventType = "order.expired"
)

// Event describes one committed lifecycle change.
type Event struct {
	Type  EventType
	Order Order
	Actor Player
	At    time.Time
}

// Notifier receives events after the change is committed. Notify must not
// block for long; it runs on the caller's goroutine.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// ProfessionChecker is an optional integration that restricts who may
// create and accept orders. Without one every player may do both.
type ProfessionChecker interface {
	IsCourier(p Player) bool
	CanCreate(p Player) bool
	CanAccept(p Player) bool
}

// StaticProfessions treats a fixed set of players as couriers. Couriers
// accept orders and may not create them; everyone else the reverse.
type StaticProfessions map[uuid.UUID]struct{}

// NewStaticProfessions returns a checker for the given courier ids.
func NewStaticProfessions(couriers ...uuid.UUID) StaticProfessions {
	s := make(StaticProfessions, len(couriers))
	for _, id := range couriers {
		s[id] = struct{}{}
	}
	return s
}

func (s StaticProfessions) IsCourier(p Player) bool {
	_, ok := s[p.ID]
	return ok
}

func (s StaticProfessions) CanCreate(p Player) bool { return !s.IsCourier(p) }

func (s StaticProfessions) CanAccept(p Player) bool { return s.IsCourier(p) }

// Notifiers fans one event out to several receivers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ev Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ev)
		}
	}
}
