package refunds

import "time"

// LineInput asks for quantity units of one product back.
type LineInput struct {
	EAN      string `json:"ean" validate:"required,ean"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

// Request refunds lines of the order paid by PaymentID.
type Request struct {
	PaymentID string      `json:"payment_id" validate:"required"`
	Lines     []LineInput `json:"lines" validate:"required,min=1,dive"`
	Reason    string      `json:"reason,omitempty" validate:"max=192"`
}

// LineResult is a reconciled line priced as it was sold.
type LineResult struct {
	EAN         string `json:"ean"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	AmountMinor int64  `json:"amount_minor"`
}

// Result describes an accepted and reconciled refund.
type Result struct {
	RefundID     string       `json:"refund_id"`
	OrderID      string       `json:"order_id"`
	Status       string       `json:"status"`
	AmountMinor  int64        `json:"amount_minor"`
	Currency     string       `json:"currency"`
	OrderDeleted bool         `json:"order_deleted"`
	Lines        []LineResult `json:"lines"`
}

// HistoryEntry is one stored refund of a payment.
type HistoryEntry struct {
	RefundID    string       `json:"refund_id"`
	OrderID     string       `json:"order_id"`
	Status      string       `json:"status"`
	AmountMinor int64        `json:"amount_minor"`
	Currency    string       `json:"currency"`
	Lines       []LineResult `json:"lines"`
	CreatedAt   time.Time    `json:"created_at"`
}
