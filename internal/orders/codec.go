package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Record is the persisted shape of one order. It is independent of the
// encoding: the same struct is written by every Codec and by the
// DynamoDB mirror (order_id is the mirror table's partition key).
type Record struct {
	ID               string       `cbor:"id" json:"id" dynamodbav:"order_id"`
	OwnerID          string       `cbor:"owner_id" json:"owner_id" dynamodbav:"owner_id"`
	OwnerName        string       `cbor:"owner_name" json:"owner_name" dynamodbav:"owner_name"`
	Description      string       `cbor:"description" json:"description" dynamodbav:"description"`
	Status           string       `cbor:"status" json:"status" dynamodbav:"status"`
	CreatedAt        int64        `cbor:"created_at" json:"created_at" dynamodbav:"created_at"`
	AcceptedAt       int64        `cbor:"accepted_at" json:"accepted_at" dynamodbav:"accepted_at"`
	CompletedAt      int64        `cbor:"completed_at" json:"completed_at" dynamodbav:"completed_at"`
	ExperienceReward int32        `cbor:"experience_reward" json:"experience_reward" dynamodbav:"experience_reward"`
	AcceptedByID     *string      `cbor:"accepted_by_id,omitempty" json:"accepted_by_id,omitempty" dynamodbav:"accepted_by_id,omitempty"`
	AcceptedByName   *string      `cbor:"accepted_by_name,omitempty" json:"accepted_by_name,omitempty" dynamodbav:"accepted_by_name,omitempty"`
	RequestItems     []RecordItem `cbor:"request_items" json:"request_items" dynamodbav:"request_items"`
	RewardItems      []RecordItem `cbor:"reward_items" json:"reward_items" dynamodbav:"reward_items"`
}

// RecordItem is the persisted shape of an Item.
type RecordItem struct {
	Kind string `cbor:"kind" json:"kind" dynamodbav:"kind"`
	Qty  int32  `cbor:"qty" json:"qty" dynamodbav:"qty"`
}

// ToRecord converts o to its persisted shape.
func ToRecord(o Order) Record {
	rec := Record{
		ID:               o.ID.String(),
		OwnerID:          o.OwnerID.String(),
		OwnerName:        o.OwnerName,
		Description:      o.Description,
		Status:           string(o.Status),
		CreatedAt:        toMillis(o.CreatedAt),
		AcceptedAt:       toMillis(o.AcceptedAt),
		CompletedAt:      toMillis(o.CompletedAt),
		ExperienceReward: int32(o.ExperienceReward),
		RequestItems:     toRecordItems(o.RequestItems),
		RewardItems:      toRecordItems(o.RewardItems),
	}
	if o.Accepted() {
		id := o.AcceptedByID.String()
		name := o.AcceptedByName
		rec.AcceptedByID = &id
		rec.AcceptedByName = &name
	}
	return rec
}

// FromRecord converts a persisted record back to an Order. It checks
// identifiers and status but not content validity; see Order.Validate.
func FromRecord(rec Record) (Order, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return Order{}, fmt.Errorf("parse id: %w", err)
	}
	owner, err := uuid.Parse(rec.OwnerID)
	if err != nil {
		return Order{}, fmt.Errorf("parse owner_id: %w", err)
	}
	status, ok := ParseStatus(rec.Status)
	if !ok {
		return Order{}, fmt.Errorf("unknown status %q", rec.Status)
	}
	o := Order{
		ID:               id,
		OwnerID:          owner,
		OwnerName:        rec.OwnerName,
		Description:      rec.Description,
		Status:           status,
		CreatedAt:        fromMillis(rec.CreatedAt),
		AcceptedAt:       fromMillis(rec.AcceptedAt),
		CompletedAt:      fromMillis(rec.CompletedAt),
		ExperienceReward: int(rec.ExperienceReward),
		RequestItems:     fromRecordItems(rec.RequestItems),
		RewardItems:      fromRecordItems(rec.RewardItems),
	}
	if rec.AcceptedByID != nil {
		by, err := uuid.Parse(*rec.AcceptedByID)
		if err != nil {
			return Order{}, fmt.Errorf("parse accepted_by_id: %w", err)
		}
		o.AcceptedByID = by
	}
	if rec.AcceptedByName != nil {
		o.AcceptedByName = *rec.AcceptedByName
	}
	return o, nil
}

func toRecordItems(items []Item) []RecordItem {
	out := make([]RecordItem, 0, len(items))
	for _, it := range items {
		out = append(out, RecordItem{Kind: it.Kind, Qty: int32(it.Quantity)})
	}
	return out
}

func fromRecordItems(items []RecordItem) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{Kind: it.Kind, Quantity: int(it.Qty)})
	}
	return out
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Codec converts records to and from an encoded tree.
type Codec interface {
	Name() string
	Marshal(rec Record) ([]byte, error)
	Unmarshal(data []byte, rec *Record) error
}

// CodecByName returns the codec registered under name ("cbor" or "json").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "cbor":
		return CBORCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// encMode uses Core Deterministic Encoding so the same record always
// produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("orders: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("orders: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec encodes records as deterministic CBOR maps.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(rec Record) ([]byte, error) {
	return encMode.Marshal(rec)
}

func (CBORCodec) Unmarshal(data []byte, rec *Record) error {
	return decMode.Unmarshal(data, rec)
}

// JSONCodec encodes records as JSON objects.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func (JSONCodec) Unmarshal(data []byte, rec *Record) error {
	return json.Unmarshal(data, rec)
}
