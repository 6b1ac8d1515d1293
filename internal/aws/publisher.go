package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// SendOrderMessage sends an order message to SQS. messageBody should be a JSON string.
// attributes map[string]string -> sent as MessageAttributes.
func (p *Publisher) SendOrderMessage(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(p.QueueURL),
		MessageBody: sdkaws.String(messageBody),
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			// using string type for all attrs
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// EventMessage is the SQS body for one lifecycle event.
type EventMessage struct {
	Type           string `json:"type"`
	OrderID        string `json:"order_id"`
	OwnerID        string `json:"owner_id"`
	OwnerName      string `json:"owner_name"`
	Status         string `json:"status"`
	Summary        string `json:"summary"`
	ActorID        string `json:"actor_id,omitempty"`
	ActorName      string `json:"actor_name,omitempty"`
	AcceptedByName string `json:"accepted_by_name,omitempty"`
	At             int64  `json:"at"`
}

// EventPublisher is an orders.Notifier that forwards lifecycle events to
// SQS. Notify only enqueues; Run performs the sends. When the buffer is
// full the event is dropped and counted.
type EventPublisher struct {
	publisher   *Publisher
	events      chan orders.Event
	sendTimeout time.Duration
	dropped     atomic.Int64
	logger      *slog.Logger
}

// NewEventPublisher returns a publisher buffering up to buffer events.
func NewEventPublisher(p *Publisher, buffer int, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &EventPublisher{
		publisher:   p,
		events:      make(chan orders.Event, buffer),
		sendTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// Notify enqueues ev without blocking.
func (e *EventPublisher) Notify(ev orders.Event) {
	select {
	case e.events <- ev:
	default:
		n := e.dropped.Add(1)
		e.logger.Warn("event queue full, dropping order event", "type", ev.Type, "order_id", ev.Order.ID, "dropped", n)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (e *EventPublisher) Dropped() int64 { return e.dropped.Load() }

// Run sends queued events until ctx is cancelled.
func (e *EventPublisher) Run(ctx context.Context) {
	e.logger.Info("starting order event publisher", "queue", e.publisher.QueueURL)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("order event publisher stopped", "pending", len(e.events))
			return
		case ev := <-e.events:
			if err := e.send(ctx, ev); err != nil {
				e.logger.Error("failed to publish order event", "type", ev.Type, "order_id", ev.Order.ID, "error", err)
			}
		}
	}
}

func (e *EventPublisher) send(ctx context.Context, ev orders.Event) error {
	msg := EventMessage{
		Type:           string(ev.Type),
		OrderID:        ev.Order.ID.String(),
		OwnerID:        ev.Order.OwnerID.String(),
		OwnerName:      ev.Order.OwnerName,
		Status:         string(ev.Order.Status),
		Summary:        ev.Order.ShortDescription(),
		ActorName:      ev.Actor.Name,
		AcceptedByName: ev.Order.AcceptedByName,
		At:             ev.At.UnixMilli(),
	}
	if ev.Actor.ID != uuid.Nil {
		msg.ActorID = ev.Actor.ID.String()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	return e.publisher.SendOrderMessage(sendCtx, string(body), map[string]string{
		"event_type": msg.Type,
		"order_id":   msg.OrderID,
	})
}
