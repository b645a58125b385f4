package enums

// RefundStatus is the gateway's view of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusRejected  RefundStatus = "REJECTED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

var refundStatuses = newSet(
	RefundStatusPending,
	RefundStatusCompleted,
	RefundStatusRejected,
	RefundStatusFailed,
)

func (r RefundStatus) String() string { return string(r) }

func (r RefundStatus) IsValid() bool { return refundStatuses.has(r) }

// Accepted reports whether the gateway has taken the refund on. Only accepted
// refunds are reconciled locally.
func (r RefundStatus) Accepted() bool {
	return r == RefundStatusPending || r == RefundStatusCompleted
}

func ParseRefundStatus(value string) (RefundStatus, error) {
	return refundStatuses.parseUpper("refund status", value)
}
