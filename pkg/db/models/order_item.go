package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem records what was sold and any till override. The charged amount is
// not stored: it is recomputed from price history at the order time.
type OrderItem struct {
	ID                 int64            `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID            int64            `gorm:"column:order_id;not null;uniqueIndex:ux_order_items_order_product,priority:1"`
	ProductID          int64            `gorm:"column:product_id;not null;uniqueIndex:ux_order_items_order_product,priority:2"`
	Quantity           int              `gorm:"column:quantity;not null;check:chk_order_items_quantity_positive,quantity > 0"`
	PercentageModifier *decimal.Decimal `gorm:"column:percentage_modifier;type:numeric(5,2)"`
	CustomPrice        *decimal.Decimal `gorm:"column:custom_price;type:numeric(10,2)"`
	Product            *Product         `gorm:"foreignKey:ProductID"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
