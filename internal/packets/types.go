package packets

import (
	"time"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

// ItemView is the wire form of an order line.
type ItemView struct {
	Kind     string `json:"kind"`
	Quantity int    `json:"qty"`
}

// OrderView is the wire form of an order returned to players and admins.
type OrderView struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	OwnerName        string     `json:"owner_name"`
	Description      string     `json:"description"`
	Summary          string     `json:"summary"`
	Status           string     `json:"status"`
	RequestItems     []ItemView `json:"request_items"`
	RewardItems      []ItemView `json:"reward_items"`
	ExperienceReward int        `json:"experience_reward"`
	AcceptedByID     string     `json:"accepted_by_id,omitempty"`
	AcceptedByName   string     `json:"accepted_by_name,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Response is the reply to one packet.
type Response struct {
	OK        bool        `json:"ok"`
	Reason    string      `json:"reason,omitempty"`
	Order     *OrderView  `json:"order,omitempty"`
	Orders    []OrderView `json:"orders,omitempty"`
	CanCreate *bool       `json:"can_create,omitempty"`
	Replayed  bool        `json:"replayed,omitempty"`
}

// NewOrderView renders o for the wire.
func NewOrderView(o orders.Order) OrderView {
	v := OrderView{
		ID:               o.ID.String(),
		OwnerID:          o.OwnerID.String(),
		OwnerName:        o.OwnerName,
		Description:      o.Description,
		Summary:          o.ShortDescription(),
		Status:           string(o.Status),
		RequestItems:     itemViews(o.RequestItems),
		RewardItems:      itemViews(o.RewardItems),
		ExperienceReward: o.ExperienceReward,
		CreatedAt:        o.CreatedAt,
	}
	if o.Accepted() {
		v.AcceptedByID = o.AcceptedByID.String()
		v.AcceptedByName = o.AcceptedByName
	}
	if !o.AcceptedAt.IsZero() {
		t := o.AcceptedAt
		v.AcceptedAt = &t
	}
	if !o.CompletedAt.IsZero() {
		t := o.CompletedAt
		v.CompletedAt = &t
	}
	return v
}

// NewOrderViews renders a list, never returning nil.
func NewOrderViews(list []orders.Order) []OrderView {
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, NewOrderView(o))
	}
	return out
}

func itemViews(items []orders.Item) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, ItemView{Kind: it.Kind, Quantity: it.Quantity})
	}
	return out
}
