package refunds

import (
	"context"

	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db/models"
)

// Repository holds the conditional writes refunds are reconciled with.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id ASC") }).
		Preload("Items.Product").
		Where("payment_id = ?", paymentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// DecrementItem lowers the quantity only if more than qty units remain.
func (r *Repository) DecrementItem(ctx context.Context, itemID int64, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		"UPDATE order_items SET quantity = quantity - ? WHERE id = ? AND quantity > ?",
		qty, itemID, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteItemIfQuantity removes the line only if exactly qty units remain.
func (r *Repository) DeleteItemIfQuantity(ctx context.Context, itemID int64, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		"DELETE FROM order_items WHERE id = ? AND quantity = ?",
		itemID, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) CountItems(ctx context.Context, orderID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}

func (r *Repository) DeleteOrder(ctx context.Context, orderID int64) error {
	return r.db.WithContext(ctx).Where("id = ?", orderID).Delete(&models.Order{}).Error
}

func (r *Repository) InsertRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

// ListByPaymentID returns the audit rows for a payment, oldest first.
func (r *Repository) ListByPaymentID(ctx context.Context, paymentID string) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("id ASC").Find(&rows).Error
	return rows, err
}
