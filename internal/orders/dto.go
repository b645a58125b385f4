package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineInput is one scanned line on the till.
type LineInput struct {
	EAN             string           `json:"ean" validate:"required,ean"`
	Quantity        int              `json:"quantity" validate:"min=1"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	CustomPrice     *decimal.Decimal `json:"custom_price,omitempty"`
}

// CreateResult is returned once the order is persisted behind its link.
type CreateResult struct {
	OrderID     string `json:"order_id"`
	PaymentLink string `json:"payment_link"`
	TotalMinor  int64  `json:"total_minor"`
	Currency    string `json:"currency"`
}

// StatusDTO answers the till's payment check.
type StatusDTO struct {
	OrderID   string `json:"order_id"`
	IsSettled bool   `json:"is_settled"`
}

// OrderItemDTO is one line of an order as it was sold.
type OrderItemDTO struct {
	EAN                string  `json:"ean"`
	Description        string  `json:"description"`
	Quantity           int     `json:"quantity"`
	UnitGross          string  `json:"unit_gross"`
	PercentageModifier *string `json:"percentage_modifier,omitempty"`
	CustomPrice        bool    `json:"custom_price"`
}

// OrderDetailDTO describes an order and its remaining items.
type OrderDetailDTO struct {
	OrderID   string         `json:"order_id"`
	IsSale    bool           `json:"is_sale"`
	IsSettled bool           `json:"is_settled"`
	OrderTime time.Time      `json:"order_time"`
	PaymentID *string        `json:"payment_id,omitempty"`
	Items     []OrderItemDTO `json:"items"`
}

// ListParams are the till's filters for the recent orders view.
type ListParams struct {
	Settled *bool
	Limit   int
	Cursor  string
}

// OrderSummaryDTO is one row of the recent orders view.
type OrderSummaryDTO struct {
	OrderID   string    `json:"order_id"`
	IsSale    bool      `json:"is_sale"`
	IsSettled bool      `json:"is_settled"`
	OrderTime time.Time `json:"order_time"`
	PaymentID *string   `json:"payment_id,omitempty"`
}

// OrderListDTO is a page of orders. NextCursor is empty on the last page.
type OrderListDTO struct {
	Orders     []OrderSummaryDTO `json:"orders"`
	NextCursor string            `json:"next_cursor,omitempty"`
}
