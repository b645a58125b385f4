package models

import (
	"encoding/json"
	"time"
)

// Refund is the audit row written when the gateway accepts a refund. It
// survives deletion of the order it refunded.
type Refund struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID         int64           `gorm:"column:order_id;not null;index"`
	GatewayOrderID  string          `gorm:"column:gateway_order_id;not null"`
	PaymentID       string          `gorm:"column:payment_id;not null;index"`
	GatewayRefundID string          `gorm:"column:gateway_refund_id;not null"`
	Status          string          `gorm:"column:status;not null"`
	AmountMinor     int64           `gorm:"column:amount_minor;not null"`
	Currency        string          `gorm:"column:currency;type:char(3);not null"`
	IdempotencyKey  string          `gorm:"column:idempotency_key;not null;uniqueIndex:ux_refunds_idempotency_key"`
	Lines           json.RawMessage `gorm:"column:lines;type:jsonb;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
