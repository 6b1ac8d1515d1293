package orders

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusOpen       Status = "OPEN"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusDeclined   Status = "DECLINED"
	StatusCancelled  Status = "CANCELLED"
)

// Limits applied to every order admitted to the store.
const (
	MaxDescriptionLength = 500
	MaxItemsPerList      = 10
	MaxItemQuantity      = 64
	DefaultMaxActive     = 5
	DefaultExpiryAge     = 24 * time.Hour
	DefaultRetention     = 7 * 24 * time.Hour
	shortDescriptionLen  = 40
)

// ParseStatus returns the Status named by s.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusOpen, StatusAccepted, StatusInProgress, StatusCompleted, StatusDeclined, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusCancelled
}

// Active reports whether s counts against the owner's active-order limit.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusAccepted || s == StatusInProgress
}

// Item is one (kind, quantity) line of a request or reward list.
type Item struct {
	Kind     string `json:"kind"`
	Quantity int    `json:"qty"`
}

// Player identifies a participant. Admin carries the administrative
// override used by cancel and delete.
type Player struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Admin bool      `json:"admin,omitempty"`
}

// Order is a unit of requester-to-fulfiller work with an escrowed reward.
type Order struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	OwnerName        string
	Description      string
	RequestItems     []Item
	RewardItems      []Item
	Status           Status
	AcceptedByID     uuid.UUID // uuid.Nil until accepted
	AcceptedByName   string
	CreatedAt        time.Time
	AcceptedAt       time.Time
	CompletedAt      time.Time
	ExperienceReward int
}

// NewOrder carries the caller-supplied fields of a creation request.
type NewOrder struct {
	Description      string
	RequestItems     []Item
	RewardItems      []Item
	ExperienceReward int
}

// Statistics is a point-in-time count of orders by status.
type Statistics struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	Accepted   int `json:"accepted"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Declined   int `json:"declined"`
	Cancelled  int `json:"cancelled"`
}

// Active returns the number of orders that still count against owner limits.
func (s Statistics) Active() int {
	return s.Open + s.Accepted + s.InProgress
}

// ByStatus returns the counts keyed by status.
func (s Statistics) ByStatus() map[Status]int {
	return map[Status]int{
		StatusOpen:       s.Open,
		StatusAccepted:   s.Accepted,
		StatusInProgress: s.InProgress,
		StatusCompleted:  s.Completed,
		StatusDeclined:   s.Declined,
		StatusCancelled:  s.Cancelled,
	}
}
