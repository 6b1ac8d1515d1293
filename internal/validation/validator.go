package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// order-addressed actions must carry an order id; create must carry content
	v.RegisterStructValidation(packetStructValidation, PacketRequest{})

	return v
}

func packetStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PacketRequest)

	if NeedsOrderID(req.Action) && req.OrderID == "" {
		sl.ReportError(req.OrderID, "order_id", "OrderID", "required_for_action", req.Action)
	}
	if req.Action == ActionCreate {
		if len(req.RequestItems) == 0 {
			sl.ReportError(req.RequestItems, "request_items", "RequestItems", "required_for_action", req.Action)
		}
		if len(req.RewardItems) == 0 {
			sl.ReportError(req.RewardItems, "reward_items", "RewardItems", "required_for_action", req.Action)
		}
	}
}
