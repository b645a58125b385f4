package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/pagination"
	"github.com/tillpoint/epos-backend/pkg/square"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	FindWithItems(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	DeletePending(ctx context.Context, orderID int64) (bool, error)
	DeleteItems(ctx context.Context, orderID int64) error
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
}

// PaymentGateway raises the hosted payment page for a new order.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkParams) (*square.PaymentLink, error)
	Currency() string
}

type productFinder interface {
	FindByEANs(ctx context.Context, eans []string) (map[string]models.Product, error)
}

// ListFilter selects a newest-first page of orders.
type ListFilter struct {
	Settled *bool
	After   *pagination.Cursor
	Limit   int
}
