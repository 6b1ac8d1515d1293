package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

func sampleOrder() orders.Order {
	return orders.Order{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		OwnerName:    "alex",
		Description:  "a stack of oak logs for the new barn on the hill",
		RequestItems: []orders.Item{{Kind: "minecraft:oak_log", Quantity: 64}},
		RewardItems:  []orders.Item{{Kind: "minecraft:diamond", Quantity: 1}},
		Status:       orders.StatusOpen,
		CreatedAt:    time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func TestSendOrderMessage_Attributes(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/queue")

	if err := p.SendOrderMessage(context.Background(), `{"x":1}`, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	in := mock.sent[0]
	if *in.QueueUrl != "https://sqs.local/queue" || *in.MessageBody != `{"x":1}` {
		t.Fatalf("unexpected input %+v", in)
	}
	if *in.MessageAttributes["a"].StringValue != "1" || *in.MessageAttributes["b"].StringValue != "2" {
		t.Fatalf("attributes not copied per key: %+v", in.MessageAttributes)
	}
}

func TestEventPublisher_SendsQueuedEvents(t *testing.T) {
	mock := &mockSQS{}
	ep := NewEventPublisher(NewPublisher(mock, "q"), 4, nil)
	o := sampleOrder()
	actor := orders.Player{ID: uuid.New(), Name: "bea"}

	ep.Notify(orders.Event{Type: orders.EventAccepted, Order: o, Actor: actor, At: o.CreatedAt})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ep.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for mock.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if mock.count() != 1 {
		t.Fatalf("expected 1 message, got %d", mock.count())
	}
	var msg EventMessage
	if err := json.Unmarshal([]byte(*mock.sent[0].MessageBody), &msg); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.Type != string(orders.EventAccepted) || msg.OrderID != o.ID.String() || msg.ActorID != actor.ID.String() {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.Summary != o.ShortDescription() || len(msg.Summary) != 40 {
		t.Fatalf("summary not shortened: %q", msg.Summary)
	}
	if *mock.sent[0].MessageAttributes["event_type"].StringValue != "order.accepted" {
		t.Fatalf("missing event_type attribute")
	}
}

func TestEventPublisher_DropsWhenFull(t *testing.T) {
	ep := NewEventPublisher(NewPublisher(&mockSQS{}, "q"), 1, nil)
	ev := orders.Event{Type: orders.EventCreated, Order: sampleOrder()}
	ep.Notify(ev)
	ep.Notify(ev)
	ep.Notify(ev)
	if ep.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", ep.Dropped())
	}
}

func TestStatsReporter_Report(t *testing.T) {
	mock := &mockCloudWatch{}
	r := NewStatsReporter(mock, "Courier", func() orders.Statistics {
		return orders.Statistics{Total: 3, Open: 2, Cancelled: 1}
	}, nil)

	if err := r.Report(context.Background()); err != nil {
		t.Fatalf("report: %v", err)
	}
	in := mock.inputs[0]
	if *in.Namespace != "Courier" {
		t.Fatalf("namespace = %s", *in.Namespace)
	}
	if len(in.MetricData) != 7 {
		t.Fatalf("expected total + 6 statuses, got %d", len(in.MetricData))
	}
	if *in.MetricData[0].MetricName != "OrdersTotal" || *in.MetricData[0].Value != 3 {
		t.Fatalf("unexpected total datum %+v", in.MetricData[0])
	}
	for _, d := range in.MetricData[1:] {
		if *d.Dimensions[0].Value == "OPEN" && *d.Value != 2 {
			t.Fatalf("OPEN = %v, want 2", *d.Value)
		}
	}
}

func TestTableMirror_PutsSkipsAndDeletes(t *testing.T) {
	mock := newMockDynamo()
	m := NewTableMirror(mock, "orders-backup", nil)
	ctx := context.Background()
	a, b := sampleOrder(), sampleOrder()

	if err := m.Mirror(ctx, []orders.Order{a, b}); err != nil {
		t.Fatalf("first mirror: %v", err)
	}
	if mock.puts != 2 {
		t.Fatalf("puts = %d, want 2", mock.puts)
	}

	var rec orders.Record
	if err := attributevalue.UnmarshalMap(mock.table[a.ID.String()], &rec); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	if rec.OwnerName != "alex" || rec.RequestItems[0].Qty != 64 || rec.AcceptedByID != nil {
		t.Fatalf("unexpected mirrored record %+v", rec)
	}

	a.Status = orders.StatusCancelled
	if err := m.Mirror(ctx, []orders.Order{a}); err != nil {
		t.Fatalf("second mirror: %v", err)
	}
	report := m.LastReport()
	if report.Put != 1 || report.Deleted != 1 || report.Unchanged != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, ok := mock.table[b.ID.String()]; ok {
		t.Fatalf("removed order still mirrored")
	}

	if err := m.Mirror(ctx, []orders.Order{a}); err != nil {
		t.Fatalf("third mirror: %v", err)
	}
	if r := m.LastReport(); r.Unchanged != 1 || r.Put != 0 {
		t.Fatalf("unchanged record re-sent: %+v", r)
	}
}

func TestTableMirror_ToleratesRecordFailures(t *testing.T) {
	mock := newMockDynamo()
	m := NewTableMirror(mock, "orders-backup", nil)
	good, slow, bad := sampleOrder(), sampleOrder(), sampleOrder()
	mock.failFor[slow.ID.String()] = &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}
	mock.failFor[bad.ID.String()] = errors.New("connection reset")

	err := m.Mirror(context.Background(), []orders.Order{good, slow, bad})
	if !errors.Is(err, ErrMirrorIncomplete) {
		t.Fatalf("expected ErrMirrorIncomplete, got %v", err)
	}
	r := m.LastReport()
	if r.Put != 1 || r.Throttled != 1 || r.Failed != 1 {
		t.Fatalf("unexpected report %+v", r)
	}

	// failed records are retried on the next pass
	delete(mock.failFor, slow.ID.String())
	delete(mock.failFor, bad.ID.String())
	if err := m.Mirror(context.Background(), []orders.Order{good, slow, bad}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if r := m.LastReport(); r.Put != 2 || r.Unchanged != 1 {
		t.Fatalf("unexpected retry report %+v", r)
	}
}
