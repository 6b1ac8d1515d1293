package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// IdempotencyRecord remembers the outcome of one keyed request so a retry
// can be answered without running the operation again.
type IdempotencyRecord struct {
	IdempotencyKey string
	Status         string
	OrderID        string // set once the operation resolved an order
	ResponseBody   []byte // encoded response replayed on DONE
	ResponseStatus int    // e.g. 200
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
	Note           string
}

func (r *IdempotencyRecord) clone() *IdempotencyRecord {
	c := *r
	if r.ResponseBody != nil {
		c.ResponseBody = append([]byte(nil), r.ResponseBody...)
	}
	return &c
}
