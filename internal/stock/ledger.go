// Package stock applies signed quantity deltas to product stock levels.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db/models"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

// Adjuster is the surface settlement and refunds depend on.
type Adjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, productID int64, delta decimal.Decimal) (decimal.Decimal, error)
}

type negativeCounter interface {
	IncStockNegative()
}

// Ledger issues atomic stock updates. Stock may go negative; that is
// reported, never refused.
type Ledger struct {
	metrics negativeCounter
	logg    *logger.Logger
}

func NewLedger(metrics negativeCounter, logg *logger.Logger) *Ledger {
	return &Ledger{metrics: metrics, logg: logg}
}

// Adjust adds delta to the product's stock inside tx and returns the new level.
func (l *Ledger) Adjust(ctx context.Context, tx *gorm.DB, productID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if tx == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInternal, "stock adjust requires a transaction")
	}
	res := tx.WithContext(ctx).Exec(
		"UPDATE products SET stock = stock + CAST(? AS NUMERIC), updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		delta.String(), productID,
	)
	if res.Error != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "adjust stock")
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %d not found", productID)
	}

	var product models.Product
	if err := tx.WithContext(ctx).Select("id", "ean", "stock").First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %d not found", productID)
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read stock level")
	}

	if product.Stock.IsNegative() {
		if l.metrics != nil {
			l.metrics.IncStockNegative()
		}
		if l.logg != nil {
			logCtx := l.logg.WithFields(ctx, map[string]any{
				"product_id": productID,
				"ean":        product.EAN,
				"delta":      delta.String(),
				"stock":      product.Stock.String(),
			})
			l.logg.Warn(logCtx, fmt.Sprintf("stock for %s is negative", product.EAN))
		}
	}
	return product.Stock, nil
}
