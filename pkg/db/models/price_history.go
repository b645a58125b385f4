package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistory is an effective-dated price for a product over [StartAt, EndAt).
// Rows are append-only; a price is retired by setting EndAt, never by deleting
// it, so historical orders can be repriced for refunds.
type PriceHistory struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID int64           `gorm:"column:product_id;not null;index:ix_price_history_product_start,priority:1"`
	StartAt   time.Time       `gorm:"column:start_at;not null;index:ix_price_history_product_start,priority:2"`
	EndAt     *time.Time      `gorm:"column:end_at"`
	Net       decimal.Decimal `gorm:"column:net;type:numeric(10,2);not null"`
	Gross     decimal.Decimal `gorm:"column:gross;type:numeric(10,2);not null"`
	Reason    string          `gorm:"column:reason;not null;default:''"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the singular table name used by the schema.
func (PriceHistory) TableName() string { return "price_history" }

// EffectiveAt reports whether the entry covers the instant.
func (p PriceHistory) EffectiveAt(at time.Time) bool {
	if p.StartAt.After(at) {
		return false
	}
	return p.EndAt == nil || p.EndAt.After(at)
}
