package payloads

import "time"

// OrderLine is the sold quantity of one product.
type OrderLine struct {
	EAN      string `json:"ean"`
	Quantity int    `json:"quantity"`
}

// OrderCreatedEvent is emitted when a pending order is persisted behind a
// payment link.
type OrderCreatedEvent struct {
	OrderID     string      `json:"order_id"`
	OrderTime   time.Time   `json:"order_time"`
	TotalMinor  int64       `json:"total_minor"`
	Currency    string      `json:"currency"`
	Lines       []OrderLine `json:"lines"`
	PaymentLink string      `json:"payment_link"`
}

// OrderSettledEvent is emitted once per order when payment completes.
type OrderSettledEvent struct {
	OrderID   string      `json:"order_id"`
	PaymentID string      `json:"payment_id"`
	SettledAt time.Time   `json:"settled_at"`
	Lines     []OrderLine `json:"lines"`
}

// OrderRefundedEvent is emitted after a refund is reconciled locally.
type OrderRefundedEvent struct {
	OrderID      string      `json:"order_id"`
	PaymentID    string      `json:"payment_id"`
	RefundID     string      `json:"refund_id"`
	Status       string      `json:"status"`
	AmountMinor  int64       `json:"amount_minor"`
	Currency     string      `json:"currency"`
	Lines        []OrderLine `json:"lines"`
	OrderDeleted bool        `json:"order_deleted"`
}

// OrderCanceledEvent is emitted when a pending order is abandoned at the till.
type OrderCanceledEvent struct {
	OrderID    string    `json:"order_id"`
	CanceledAt time.Time `json:"canceled_at"`
}

// PriceChangedEvent is emitted when a new price history entry opens.
type PriceChangedEvent struct {
	EAN         string    `json:"ean"`
	Net         string    `json:"net"`
	Gross       string    `json:"gross"`
	EffectiveAt time.Time `json:"effective_at"`
	Reason      string    `json:"reason,omitempty"`
}
