package packets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-courier-orders/internal/idempotency"
	"github.com/imrishuroy/go-courier-orders/internal/orders"
	"github.com/imrishuroy/go-courier-orders/internal/validation"
)

var (
	// ErrMalformed is returned for packets whose ids cannot be parsed.
	ErrMalformed = errors.New("malformed packet")
	// ErrInProgress is returned when a packet with the same idempotency key
	// is still being processed.
	ErrInProgress = errors.New("request already in progress")
)

// Observer is told the outcome of every dispatched packet.
type Observer interface {
	ObservePacket(action, outcome string)
}

// Processor turns validated player packets into lifecycle operations.
type Processor struct {
	manager    *orders.Manager
	idempStore *idempotency.Store
	observer   Observer
	logger     *slog.Logger
}

// NewProcessor creates a processor. idempStore and observer may be nil.
func NewProcessor(manager *orders.Manager, idempStore *idempotency.Store, observer Observer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		manager:    manager,
		idempStore: idempStore,
		observer:   observer,
		logger:     logger,
	}
}

// Handle dispatches req, which must have passed validation.New(). When key
// is non-empty a mutating packet is answered at most once per player and
// key; retries replay the first response.
func (p *Processor) Handle(ctx context.Context, key string, req validation.PacketRequest) (Response, error) {
	player, orderID, err := parseIDs(req)
	if err != nil {
		return Response{}, err
	}

	if key == "" || p.idempStore == nil || !mutating(req.Action) {
		return p.dispatch(req, player, orderID), nil
	}

	scoped := player.ID.String() + ":" + key
	created, err := p.idempStore.CreateIfNotExists(ctx, scoped)
	if err != nil {
		return Response{}, fmt.Errorf("idempotency check: %w", err)
	}
	if !created {
		return p.replay(ctx, scoped)
	}

	resp := p.dispatch(req, player, orderID)
	body, err := json.Marshal(resp)
	if err != nil {
		_ = p.idempStore.MarkFailed(ctx, scoped, err.Error())
		return resp, nil
	}
	var id string
	if resp.Order != nil {
		id = resp.Order.ID
	}
	if err := p.idempStore.MarkDone(ctx, scoped, id, body, 200); err != nil {
		p.logger.Warn("failed to record idempotent response", "key", scoped, "error", err)
	}
	return resp, nil
}

func (p *Processor) replay(ctx context.Context, scoped string) (Response, error) {
	rec, err := p.idempStore.Get(ctx, scoped)
	if err != nil {
		return Response{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	// Expired between create and get; the caller may retry.
	if rec == nil {
		return Response{}, ErrInProgress
	}
	switch rec.Status {
	case idempotency.StatusDone:
		var resp Response
		if err := json.Unmarshal(rec.ResponseBody, &resp); err != nil {
			return Response{}, fmt.Errorf("decode stored response: %w", err)
		}
		resp.Replayed = true
		p.logger.Debug("replayed packet response", "key", scoped, "order_id", rec.OrderID)
		return resp, nil
	case idempotency.StatusInProgress:
		return Response{}, ErrInProgress
	default:
		return Response{}, fmt.Errorf("unexpected idempotency status %s", rec.Status)
	}
}

func (p *Processor) dispatch(req validation.PacketRequest, player orders.Player, orderID uuid.UUID) Response {
	m := p.manager
	var resp Response

	switch req.Action {
	case validation.ActionCreate:
		resp = single(m.CreateOrder(player, orders.NewOrder{
			Description:      req.Description,
			RequestItems:     toItems(req.RequestItems),
			RewardItems:      toItems(req.RewardItems),
			ExperienceReward: req.ExperienceReward,
		}))
	case validation.ActionAccept:
		resp = single(m.AcceptOrder(orderID, player))
	case validation.ActionStart:
		resp = single(m.StartOrder(orderID, player))
	case validation.ActionDecline:
		resp = single(m.DeclineOrder(orderID, player))
	case validation.ActionComplete:
		resp = single(m.CompleteOrder(orderID, &player))
	case validation.ActionCancel:
		resp = single(m.CancelOrder(orderID, player))
	case validation.ActionDelete:
		resp = single(m.DeleteOrder(orderID, player))
	case validation.ActionGet:
		resp = single(m.GetOrder(orderID))
	case validation.ActionMine:
		resp = list(m.ListOrdersByOwner(player.ID))
	case validation.ActionAccepted:
		resp = list(m.ListOrdersAcceptedBy(player.ID))
	case validation.ActionVisible:
		resp = list(m.VisibleOrders(player))
	case validation.ActionActive:
		resp = list(m.ListActiveOrders())
	case validation.ActionCanCreate:
		ok := m.CanCreate(player.ID)
		resp = Response{OK: true, CanCreate: &ok}
	default:
		resp = Response{Reason: "UNKNOWN_ACTION"}
	}

	outcome := resp.Reason
	if resp.OK {
		outcome = "OK"
	}
	if p.observer != nil {
		p.observer.ObservePacket(req.Action, outcome)
	}
	if !resp.OK {
		p.logger.Debug("packet rejected", "action", req.Action, "player", player.Name, "reason", resp.Reason)
	}
	return resp
}

func single(o orders.Order, err error) Response {
	if err != nil {
		return Response{Reason: orders.Reason(err)}
	}
	v := NewOrderView(o)
	return Response{OK: true, Order: &v}
}

func list(l []orders.Order) Response {
	return Response{OK: true, Orders: NewOrderViews(l)}
}

func mutating(action string) bool {
	switch action {
	case validation.ActionCreate, validation.ActionAccept, validation.ActionStart,
		validation.ActionDecline, validation.ActionComplete, validation.ActionCancel,
		validation.ActionDelete:
		return true
	}
	return false
}

func parseIDs(req validation.PacketRequest) (orders.Player, uuid.UUID, error) {
	pid, err := uuid.Parse(req.Player.ID)
	if err != nil {
		return orders.Player{}, uuid.Nil, fmt.Errorf("%w: player id: %v", ErrMalformed, err)
	}
	player := orders.Player{ID: pid, Name: req.Player.Name, Admin: req.Player.Admin}

	var orderID uuid.UUID
	if req.OrderID != "" {
		if orderID, err = uuid.Parse(req.OrderID); err != nil {
			return orders.Player{}, uuid.Nil, fmt.Errorf("%w: order id: %v", ErrMalformed, err)
		}
	}
	return player, orderID, nil
}

func toItems(in []validation.Item) []orders.Item {
	out := make([]orders.Item, 0, len(in))
	for _, it := range in {
		out = append(out, orders.Item{Kind: it.Kind, Quantity: it.Quantity})
	}
	return out
}
