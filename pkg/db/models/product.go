package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item identified by its scannable EAN. Stock may be
// fractional (weighed goods) and may go negative when sales outrun counts.
type Product struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	EAN         string          `gorm:"column:ean;not null;uniqueIndex:ux_products_ean"`
	Description string          `gorm:"column:description;not null"`
	TaxCategory string          `gorm:"column:tax_category;not null;default:'standard'"`
	Stock       decimal.Decimal `gorm:"column:stock;type:numeric(12,3);not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
