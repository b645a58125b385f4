package refunds

import "errors"

var (
	ErrOrderNotFound    = errors.New("no order for payment")
	ErrLineNotFound     = errors.New("product not on order")
	ErrOverRefund       = errors.New("refund quantity exceeds quantity sold")
	ErrRefundRejected   = errors.New("gateway did not accept the refund")
	ErrStaleOrder       = errors.New("order changed while the refund was in flight")
	ErrRefundInProgress = errors.New("another refund for this payment is in progress")
)
