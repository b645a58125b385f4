package products

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillpoint/epos-backend/pkg/db/models"
)

// SearchResultDTO is one row of a description search.
type SearchResultDTO struct {
	EAN         string `json:"ean"`
	Description string `json:"description"`
}

// ProductInfoDTO describes a product as the till displays it.
type ProductInfoDTO struct {
	EAN         string `json:"ean"`
	Description string `json:"description"`
	TaxCategory string `json:"tax_category"`
	Price       string `json:"price"`
	Stock       string `json:"stock"`
}

// NewProductInfoDTO renders a product with its current gross price.
func NewProductInfoDTO(product *models.Product, gross decimal.Decimal) *ProductInfoDTO {
	if product == nil {
		return nil
	}
	return &ProductInfoDTO{
		EAN:         product.EAN,
		Description: product.Description,
		TaxCategory: product.TaxCategory,
		Price:       gross.StringFixed(2),
		Stock:       product.Stock.String(),
	}
}

// NewProductInput describes a product to create together with its first price.
type NewProductInput struct {
	EAN         string          `json:"ean" validate:"required,ean"`
	Description string          `json:"description" validate:"required,max=255"`
	TaxCategory string          `json:"tax_category" validate:"omitempty,oneof=standard reduced zero exempt"`
	Stock       decimal.Decimal `json:"stock"`
	Net         decimal.Decimal `json:"net"`
	Gross       decimal.Decimal `json:"gross"`
	PriceFrom   *time.Time      `json:"price_from,omitempty"`
}

// BulkAddResult summarizes a seeding run.
type BulkAddResult struct {
	Created int      `json:"created"`
	Skipped []string `json:"skipped"`
}
