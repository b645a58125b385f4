package dbtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db/models"
)

// ProductFixture describes a product with one open price.
type ProductFixture struct {
	EAN         string
	Description string
	Stock       string
	Gross       string
	PriceFrom   time.Time
}

// SeedProduct inserts the product and its open-ended price entry.
func SeedProduct(t testing.TB, conn *gorm.DB, fx ProductFixture) models.Product {
	t.Helper()
	if fx.Description == "" {
		fx.Description = "Test product " + fx.EAN
	}
	if fx.Stock == "" {
		fx.Stock = "0"
	}
	if fx.PriceFrom.IsZero() {
		fx.PriceFrom = time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)
	}
	product := models.Product{
		EAN:         fx.EAN,
		Description: fx.Description,
		TaxCategory: "standard",
		Stock:       decimal.RequireFromString(fx.Stock),
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product %s: %v", fx.EAN, err)
	}
	if fx.Gross != "" {
		SeedPrice(t, conn, product.ID, fx.Gross, fx.PriceFrom, nil)
	}
	return product
}

// SeedPrice appends a price history entry covering [from, to).
func SeedPrice(t testing.TB, conn *gorm.DB, productID int64, gross string, from time.Time, to *time.Time) models.PriceHistory {
	t.Helper()
	amount := decimal.RequireFromString(gross)
	entry := models.PriceHistory{
		ProductID: productID,
		StartAt:   from.UTC(),
		Net:       amount,
		Gross:     amount,
	}
	if to != nil {
		end := to.UTC()
		entry.EndAt = &end
	}
	if err := conn.Create(&entry).Error; err != nil {
		t.Fatalf("seed price for product %d: %v", productID, err)
	}
	return entry
}

// StockOf reads the current stock level of a product.
func StockOf(t testing.TB, conn *gorm.DB, productID int64) decimal.Decimal {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product %d: %v", productID, err)
	}
	return product.Stock
}

// CountOutbox counts queued events of one type.
func CountOutbox(t testing.TB, conn *gorm.DB, eventType string) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return count
}
