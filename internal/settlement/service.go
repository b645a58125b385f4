// Package settlement flips pending orders to settled when the gateway reports
// a completed payment, and takes the sold quantities out of stock.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/internal/stock"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/outbox/payloads"
)

// Outcome describes what a notification did.
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Notification is the part of a gateway payment event settlement needs.
type Notification struct {
	GatewayOrderID string
	Status         string
	PaymentID      string
}

type settlementMetrics interface {
	IncSettlement(outcome string)
}

// Handler applies payment notifications to orders.
type Handler struct {
	tx      db.Runner
	stock   stock.Adjuster
	outbox  outbox.Emitter
	metrics settlementMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewHandler builds a settlement handler.
func NewHandler(tx db.Runner, ledger stock.Adjuster, emitter outbox.Emitter, metrics settlementMetrics, logg *logger.Logger) (*Handler, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Handler{
		tx:      tx,
		stock:   ledger,
		outbox:  emitter,
		metrics: metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// OnPaymentNotification settles the order at most once. Redelivered or
// concurrent notifications for the same order are no-ops.
func (h *Handler) OnPaymentNotification(ctx context.Context, n Notification) (Outcome, error) {
	gatewayOrderID := strings.TrimSpace(n.GatewayOrderID)
	paymentID := strings.TrimSpace(n.PaymentID)
	if h.logg != nil {
		ctx = h.logg.WithOrderID(ctx, gatewayOrderID)
		ctx = h.logg.WithPaymentID(ctx, paymentID)
	}

	status, err := enums.ParsePaymentStatus(n.Status)
	if err != nil || status != enums.PaymentStatusCompleted {
		h.debug(ctx, fmt.Sprintf("payment status %q does not settle", n.Status))
		return h.finish(OutcomeIgnored), nil
	}
	if gatewayOrderID == "" || paymentID == "" {
		h.warn(ctx, "completed payment without order or payment id")
		return h.finish(OutcomeIgnored), nil
	}

	outcome := OutcomeSettled
	settledAt := h.now().UTC()
	err = h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.WithContext(ctx).Select("id", "gateway_order_id").
			Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = OutcomeIgnored
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}

		res := tx.WithContext(ctx).Exec(
			"UPDATE orders SET is_settled = ?, payment_id = ?, updated_at = ? WHERE gateway_order_id = ? AND is_settled = ?",
			true, paymentID, settledAt, gatewayOrderID, false,
		)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "mark order settled")
		}
		if res.RowsAffected == 0 {
			outcome = OutcomeDuplicate
			return nil
		}

		var items []models.OrderItem
		if err := tx.WithContext(ctx).Preload("Product").
			Where("order_id = ?", order.ID).Order("id ASC").Find(&items).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
		}
		lines := make([]payloads.OrderLine, 0, len(items))
		for _, item := range items {
			if _, err := h.stock.Adjust(ctx, tx, item.ProductID, decimal.NewFromInt(int64(-item.Quantity))); err != nil {
				return err
			}
			line := payloads.OrderLine{Quantity: item.Quantity}
			if item.Product != nil {
				line.EAN = item.Product.EAN
			}
			lines = append(lines, line)
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   gatewayOrderID,
			OccurredAt:    settledAt,
			Data: payloads.OrderSettledEvent{
				OrderID:   gatewayOrderID,
				PaymentID: paymentID,
				SettledAt: settledAt,
				Lines:     lines,
			},
		}
		if err := h.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order settled event")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			// another delivery won the race
			return h.finish(OutcomeDuplicate), nil
		}
		if h.logg != nil {
			h.logg.Error(ctx, "settlement failed", err)
		}
		return "", err
	}

	switch outcome {
	case OutcomeIgnored:
		h.warn(ctx, "payment notification for unknown order")
	case OutcomeDuplicate:
		h.debug(ctx, "order already settled")
	default:
		if h.logg != nil {
			h.logg.Info(ctx, "order settled")
		}
	}
	return h.finish(outcome), nil
}

func (h *Handler) finish(outcome Outcome) Outcome {
	if h.metrics != nil {
		h.metrics.IncSettlement(string(outcome))
	}
	return outcome
}

func (h *Handler) debug(ctx context.Context, msg string) {
	if h.logg != nil {
		h.logg.Debug(ctx, msg)
	}
}

func (h *Handler) warn(ctx context.Context, msg string) {
	if h.logg != nil {
		h.logg.Warn(ctx, msg)
	}
}
