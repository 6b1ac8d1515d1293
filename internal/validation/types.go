package validation

// Packet actions accepted on the player packet endpoint.
const (
	ActionCreate    = "create"
	ActionAccept    = "accept"
	ActionStart     = "start"
	ActionDecline   = "decline"
	ActionComplete  = "complete"
	ActionCancel    = "cancel"
	ActionDelete    = "delete"
	ActionGet       = "get"
	ActionMine      = "mine"      // orders created by the player
	ActionAccepted  = "accepted"  // orders the player accepted
	ActionVisible   = "visible"   // the player's order board
	ActionActive    = "active"    // open, unexpired orders
	ActionCanCreate = "can_create"
)

// Item is one (kind, quantity) line of a packet. Quantity limits are left to
// the order rules so they surface as INVALID_ORDER.
type Item struct {
	Kind     string `json:"kind" validate:"required"` // registry id, e.g. minecraft:wheat
	Quantity int    `json:"qty"`
}

// PlayerRef identifies the player that sent the packet.
type PlayerRef struct {
	ID    string `json:"id" validate:"required,uuid"`
	Name  string `json:"name" validate:"required,max=64"`
	Admin bool   `json:"admin,omitempty"`
}

// PacketRequest is the payload for POST /packets
type PacketRequest struct {
	Action           string    `json:"action" validate:"required,oneof=create accept start decline complete cancel delete get mine accepted visible active can_create"`
	OrderID          string    `json:"order_id,omitempty" validate:"omitempty,uuid"`
	Player           PlayerRef `json:"player"`
	Description      string    `json:"description,omitempty"`
	RequestItems     []Item    `json:"request_items,omitempty" validate:"dive"`
	RewardItems      []Item    `json:"reward_items,omitempty" validate:"dive"`
	ExperienceReward int       `json:"experience_reward,omitempty"`
}

// NeedsOrderID reports whether action addresses a single existing order.
func NeedsOrderID(action string) bool {
	switch action {
	case ActionAccept, ActionStart, ActionDecline, ActionComplete, ActionCancel, ActionDelete, ActionGet:
		return true
	}
	return false
}
