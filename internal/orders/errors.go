package orders

import "errors"

// Domain rejections. Every lifecycle operation returns one of these
// (possibly wrapped) when it refuses to mutate the store.
var (
	ErrInvalidOrder    = errors.New("invalid order")
	ErrNotFound        = errors.New("order not found")
	ErrStatusMismatch  = errors.New("status mismatch")
	ErrSelfFulfillment = errors.New("owner cannot fulfill own order")
	ErrLimitReached    = errors.New("active order limit reached")
	ErrNotPermitted    = errors.New("not permitted")
	ErrNotAcceptor     = errors.New("order accepted by another player")
)

// Reason codes returned to packet and HTTP callers.
const (
	ReasonInvalidOrder    = "INVALID_ORDER"
	ReasonNotFound        = "NOT_FOUND"
	ReasonInvalidStatus   = "INVALID_STATUS"
	ReasonSelfFulfillment = "SELF_FULFILLMENT"
	ReasonLimitReached    = "LIMIT_REACHED"
	ReasonNotPermitted    = "NOT_PERMITTED"
	ReasonNotAcceptor     = "NOT_ACCEPTOR"
	ReasonInternal        = "INTERNAL"
)

// Reason maps err to a stable machine-readable code. A nil error maps to "".
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidOrder):
		return ReasonInvalidOrder
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrStatusMismatch):
		return ReasonInvalidStatus
	case errors.Is(err, ErrSelfFulfillment):
		return ReasonSelfFulfillment
	case errors.Is(err, ErrLimitReached):
		return ReasonLimitReached
	case errors.Is(err, ErrNotPermitted):
		return ReasonNotPermitted
	case errors.Is(err, ErrNotAcceptor):
		return ReasonNotAcceptor
	default:
		return ReasonInternal
	}
}
