package pricing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tillpoint/epos-backend/pkg/db/models"
)

// Repository reads and appends price history rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindEffective returns up to limit entries covering the instant, newest
// start first. More than one row means the history is inconsistent.
func (r *Repository) FindEffective(ctx context.Context, productID int64, at time.Time, limit int) ([]models.PriceHistory, error) {
	at = at.UTC()
	var rows []models.PriceHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Where("start_at <= ?", at).
		Where("end_at IS NULL OR end_at > ?", at).
		Order("start_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindOpen returns the open-ended entry for the product, if any.
func (r *Repository) FindOpen(ctx context.Context, productID int64) (*models.PriceHistory, error) {
	var row models.PriceHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND end_at IS NULL", productID).
		Order("start_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindLatestStart returns the entry with the greatest start, open or not.
func (r *Repository) FindLatestStart(ctx context.Context, productID int64) (*models.PriceHistory, error) {
	var row models.PriceHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("start_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListByProduct returns the full history ordered by start.
func (r *Repository) ListByProduct(ctx context.Context, productID int64) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("start_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// Close sets end_at on an open entry. It reports false when the entry was
// already closed by someone else.
func (r *Repository) Close(ctx context.Context, id int64, endAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PriceHistory{}).
		Where("id = ? AND end_at IS NULL", id).
		Update("end_at", endAt.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Insert appends a history entry.
func (r *Repository) Insert(ctx context.Context, entry *models.PriceHistory) error {
	entry.StartAt = entry.StartAt.UTC()
	if entry.EndAt != nil {
		end := entry.EndAt.UTC()
		entry.EndAt = &end
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// LockProduct serializes price changes for one product. Postgres takes a row
// lock; SQLite already serializes writers.
func (r *Repository) LockProduct(ctx context.Context, productID int64) (*models.Product, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var product models.Product
	if err := query.First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindProductByEAN loads the product a price belongs to.
func (r *Repository) FindProductByEAN(ctx context.Context, ean string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "ean = ?", ean).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
