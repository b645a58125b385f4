package products

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tillpoint/epos-backend/pkg/db/models"
)

// SearchLimit caps the number of rows a description search returns.
const SearchLimit = 50

// Repository persists and queries products.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a product repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByEAN returns the product or gorm.ErrRecordNotFound.
func (r *Repository) FindByEAN(ctx context.Context, ean string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "ean = ?", ean).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByEANs returns the products keyed by EAN; unknown codes are absent.
func (r *Repository) FindByEANs(ctx context.Context, eans []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(eans))
	if len(eans) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("ean IN ?", eans).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.EAN] = row
	}
	return out, nil
}

// SearchByDescription matches every word of the query anywhere in the
// description, in order, ignoring case.
func (r *Repository) SearchByDescription(ctx context.Context, query string) ([]models.Product, error) {
	pattern := searchPattern(query)
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Select("id", "ean", "description").
		Where("LOWER(description) LIKE LOWER(?)", pattern).
		Order("description ASC").
		Limit(SearchLimit).
		Find(&rows).Error
	return rows, err
}

// Create inserts the product. A duplicate EAN is left to the caller to map.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// CreateIgnoringDuplicates inserts the product unless its EAN exists. It
// reports whether a row was written.
func (r *Repository) CreateIgnoringDuplicates(ctx context.Context, product *models.Product) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "ean"}}, DoNothing: true}).
		Create(product)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListNegativeStock returns products whose stock is below zero, lowest first.
func (r *Repository) ListNegativeStock(ctx context.Context, limit int) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Select("id", "ean", "description", "stock").
		Where("stock < 0").
		Order("stock ASC").
		Order("ean ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// searchPattern wraps each whitespace-separated word in % and joins them
// with a single space.
func searchPattern(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "%"
	}
	for i, word := range words {
		words[i] = "%" + word + "%"
	}
	return strings.Join(words, " ")
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
