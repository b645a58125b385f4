package models

import "time"

// Order is a till sale created against a gateway payment link. It starts
// pending and flips to settled exactly once when the gateway confirms payment.
type Order struct {
	ID             int64       `gorm:"column:id;primaryKey;autoIncrement"`
	GatewayOrderID string      `gorm:"column:gateway_order_id;not null;uniqueIndex:ux_orders_gateway_order_id"`
	OrderTime      time.Time   `gorm:"column:order_time;not null"`
	IsSettled      bool        `gorm:"column:is_settled;not null;default:false"`
	PaymentID      *string     `gorm:"column:payment_id;uniqueIndex:ux_orders_payment_id"`
	IsSale         bool        `gorm:"column:is_sale;not null;default:true"`
	Items          []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
