package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/money"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/outbox/payloads"
	"github.com/tillpoint/epos-backend/pkg/pagination"
	"github.com/tillpoint/epos-backend/pkg/square"
)

type priceResolver interface {
	Resolve(ctx context.Context, productID int64, at time.Time) (decimal.Decimal, error)
}

type orderMetrics interface {
	IncOrderCreated()
	ObserveGateway(operation string, seconds float64, err error)
}

// Service defines the till's order operations.
type Service interface {
	Create(ctx context.Context, lines []LineInput) (*CreateResult, error)
	Status(ctx context.Context, gatewayOrderID string) (*StatusDTO, error)
	Detail(ctx context.Context, gatewayOrderID string) (*OrderDetailDTO, error)
	Cancel(ctx context.Context, gatewayOrderID string) error
	List(ctx context.Context, params ListParams) (*OrderListDTO, error)
}

// Deps groups the collaborators of the order service.
type Deps struct {
	Repo     Repository
	Products productFinder
	Prices   priceResolver
	Gateway  PaymentGateway
	Tx       db.Runner
	Outbox   outbox.Emitter
	Metrics  orderMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	products productFinder
	prices   priceResolver
	gateway  PaymentGateway
	tx       db.Runner
	outbox   outbox.Emitter
	metrics  orderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("product finder required")
	}
	if deps.Prices == nil {
		return nil, fmt.Errorf("price resolver required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     deps.Repo,
		products: deps.Products,
		prices:   deps.Prices,
		gateway:  deps.Gateway,
		tx:       deps.Tx,
		outbox:   deps.Outbox,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		now:      time.Now,
	}, nil
}

type pricedLine struct {
	input   LineInput
	product models.Product
	unit    decimal.Decimal
}

func (s *service) Create(ctx context.Context, lines []LineInput) (*CreateResult, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	orderTime := s.now().UTC()

	eans := make([]string, 0, len(lines))
	for _, line := range lines {
		eans = append(eans, strings.TrimSpace(line.EAN))
	}
	products, err := s.products.FindByEANs(ctx, eans)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}

	priced := make([]pricedLine, 0, len(lines))
	params := square.PaymentLinkParams{Lines: make([]square.PaymentLinkLine, 0, len(lines))}
	for _, line := range lines {
		ean := strings.TrimSpace(line.EAN)
		product, ok := products[ean]
		if !ok {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrProductNotFound, fmt.Sprintf("no product with ean %s", ean)).
				WithDetails(map[string]any{"ean": ean})
		}
		var gross decimal.Decimal
		if line.CustomPrice == nil {
			gross, err = s.prices.Resolve(ctx, product.ID, orderTime)
			if err != nil {
				return nil, err
			}
		}
		unit := money.UnitPrice(gross, line.CustomPrice, line.DiscountPercent)
		priced = append(priced, pricedLine{input: line, product: product, unit: unit})
		params.Lines = append(params.Lines, square.PaymentLinkLine{
			Name:        product.Description,
			Quantity:    line.Quantity,
			AmountMinor: money.ToMinor(unit),
		})
	}

	started := time.Now()
	link, err := s.gateway.CreatePaymentLink(ctx, params)
	if s.metrics != nil {
		s.metrics.ObserveGateway("create_payment_link", time.Since(started).Seconds(), err)
	}
	if err != nil {
		s.logError(ctx, "payment link request failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.Join(ErrGateway, err), "payment gateway unavailable")
	}
	if link == nil || strings.TrimSpace(link.GatewayOrderID) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ErrGateway, "payment gateway returned no order id")
	}

	result := &CreateResult{
		OrderID:     link.GatewayOrderID,
		PaymentLink: link.URL,
		TotalMinor:  params.TotalMinor(),
		Currency:    s.gateway.Currency(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.CreateOrder(ctx, &models.Order{
			GatewayOrderID: link.GatewayOrderID,
			OrderTime:      orderTime,
			IsSettled:      false,
			IsSale:         true,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert order")
		}

		items := make([]models.OrderItem, 0, len(priced))
		eventLines := make([]payloads.OrderLine, 0, len(priced))
		for _, line := range priced {
			items = append(items, models.OrderItem{
				OrderID:            order.ID,
				ProductID:          line.product.ID,
				Quantity:           line.input.Quantity,
				PercentageModifier: line.input.DiscountPercent,
				CustomPrice:        line.input.CustomPrice,
			})
			eventLines = append(eventLines, payloads.OrderLine{EAN: line.product.EAN, Quantity: line.input.Quantity})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert order items")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.GatewayOrderID,
			OccurredAt:    orderTime,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.GatewayOrderID,
				OrderTime:   orderTime,
				TotalMinor:  result.TotalMinor,
				Currency:    result.Currency,
				Lines:       eventLines,
				PaymentLink: link.URL,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created event")
		}
		return nil
	})
	if err != nil {
		s.logError(s.withOrder(ctx, link.GatewayOrderID), "order not persisted after payment link creation", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated()
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.withOrder(ctx, link.GatewayOrderID), map[string]any{
			"total_minor": result.TotalMinor,
			"lines":       len(priced),
		})
		s.logg.Info(logCtx, "order created")
	}
	return result, nil
}

func (s *service) Status(ctx context.Context, gatewayOrderID string) (*StatusDTO, error) {
	order, err := s.findOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	return &StatusDTO{OrderID: order.GatewayOrderID, IsSettled: order.IsSettled}, nil
}

func (s *service) Detail(ctx context.Context, gatewayOrderID string) (*OrderDetailDTO, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindWithItems(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	detail := &OrderDetailDTO{
		OrderID:   order.GatewayOrderID,
		IsSale:    order.IsSale,
		IsSettled: order.IsSettled,
		OrderTime: order.OrderTime.UTC(),
		PaymentID: order.PaymentID,
		Items:     make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		dto := OrderItemDTO{Quantity: item.Quantity, CustomPrice: item.CustomPrice != nil}
		if item.Product != nil {
			dto.EAN = item.Product.EAN
			dto.Description = item.Product.Description
		}
		if item.CustomPrice != nil {
			dto.UnitGross = money.Round(*item.CustomPrice).StringFixed(2)
		} else {
			gross, err := s.prices.Resolve(ctx, item.ProductID, order.OrderTime)
			if err != nil {
				return nil, err
			}
			dto.UnitGross = gross.StringFixed(2)
		}
		if item.PercentageModifier != nil {
			value := item.PercentageModifier.StringFixed(2)
			dto.PercentageModifier = &value
		}
		detail.Items = append(detail.Items, dto)
	}
	return detail, nil
}

// List returns a newest-first page of orders.
func (s *service) List(ctx context.Context, params ListParams) (*OrderListDTO, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, ListFilter{
		Settled: params.Settled,
		After:   after,
		Limit:   pagination.Probe(limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}

	rows, next := pagination.Cut(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{At: o.OrderTime, ID: o.ID}
	})
	page := &OrderListDTO{Orders: make([]OrderSummaryDTO, 0, len(rows)), NextCursor: next}
	for _, order := range rows {
		page.Orders = append(page.Orders, OrderSummaryDTO{
			OrderID:   order.GatewayOrderID,
			IsSale:    order.IsSale,
			IsSettled: order.IsSettled,
			OrderTime: order.OrderTime.UTC(),
			PaymentID: order.PaymentID,
		})
	}
	return page, nil
}

// Cancel drops a pending order and its items. Settled orders are kept.
func (s *service) Cancel(ctx context.Context, gatewayOrderID string) error {
	canceledAt := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.findOrderWith(ctx, repo, gatewayOrderID)
		if err != nil {
			return err
		}
		if order.IsSettled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled")
		}
		if err := repo.DeleteItems(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order items")
		}
		deleted, err := repo.DeletePending(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order")
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.GatewayOrderID,
			OccurredAt:    canceledAt,
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.GatewayOrderID,
				CanceledAt: canceledAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order canceled event")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.withOrder(ctx, gatewayOrderID), "order canceled")
	}
	return nil
}

func (s *service) findOrder(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return s.findOrderWith(ctx, s.repo, gatewayOrderID)
}

func (s *service) findOrderWith(ctx context.Context, repo Repository, gatewayOrderID string) (*models.Order, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := repo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) withOrder(ctx context.Context, gatewayOrderID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, gatewayOrderID)
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	seen := make(map[string]struct{}, len(lines))
	for i, line := range lines {
		ean := strings.TrimSpace(line.EAN)
		if ean == "" {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: ean is required", i)
		}
		if _, dup := seen[ean]; dup {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: ean %s appears more than once", i, ean).
				WithDetails(map[string]any{"ean": ean})
		}
		seen[ean] = struct{}{}
		if line.Quantity < 1 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be at least 1", i)
		}
		if line.DiscountPercent != nil {
			if err := errors.Join(money.ValidatePercent(*line.DiscountPercent), money.ValidateScale(*line.DiscountPercent)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d: invalid discount", i))
			}
		}
		if line.CustomPrice != nil {
			if err := errors.Join(money.ValidateAmount(*line.CustomPrice), money.ValidateScale(*line.CustomPrice)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d: invalid custom price", i))
			}
		}
	}
	return nil
}
