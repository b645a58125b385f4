package enums

// PaymentStatus mirrors the payment states the gateway reports in webhooks.
type PaymentStatus string

const (
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusCanceled  PaymentStatus = "CANCELED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

var paymentStatuses = newSet(
	PaymentStatusApproved,
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusCanceled,
	PaymentStatusFailed,
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

// ParsePaymentStatus ignores case and surrounding whitespace.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parseUpper("payment status", value)
}
