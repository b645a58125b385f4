// Package refunds returns sold units: it prices the lines as they were sold,
// refunds the payment at the gateway, then reconciles order items and stock.
package refunds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/internal/stock"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/metrics"
	"github.com/tillpoint/epos-backend/pkg/money"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/outbox/payloads"
	"github.com/tillpoint/epos-backend/pkg/redis"
	"github.com/tillpoint/epos-backend/pkg/square"
)

const lockScope = "refund"

// PaymentGateway refunds a completed payment.
type PaymentGateway interface {
	RefundPayment(ctx context.Context, params square.RefundParams) (*square.PaymentRefund, error)
	Currency() string
}

// Locker serializes refunds of one payment.
type Locker interface {
	Obtain(ctx context.Context, scope, id string) (redis.Lock, error)
}

type priceResolver interface {
	Resolve(ctx context.Context, productID int64, at time.Time) (decimal.Decimal, error)
}

type refundMetrics interface {
	IncRefund(outcome string, amountMinor int64)
	ObserveGateway(operation string, seconds float64, err error)
}

// Deps groups the collaborators of the reconciler.
type Deps struct {
	Repo    *Repository
	Prices  priceResolver
	Gateway PaymentGateway
	Locker  Locker
	Stock   stock.Adjuster
	Tx      db.Runner
	Outbox  outbox.Emitter
	Metrics refundMetrics
	Logger  *logger.Logger
}

// Reconciler processes partial and full refunds.
type Reconciler struct {
	repo    *Repository
	prices  priceResolver
	gateway PaymentGateway
	locker  Locker
	stock   stock.Adjuster
	tx      db.Runner
	outbox  outbox.Emitter
	metrics refundMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewReconciler(deps Deps) (*Reconciler, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("refund repository required")
	case deps.Prices == nil:
		return nil, fmt.Errorf("price resolver required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case deps.Locker == nil:
		return nil, fmt.Errorf("refund locker required")
	case deps.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Reconciler{
		repo:    deps.Repo,
		prices:  deps.Prices,
		gateway: deps.Gateway,
		locker:  deps.Locker,
		stock:   deps.Stock,
		tx:      deps.Tx,
		outbox:  deps.Outbox,
		metrics: deps.Metrics,
		logg:    deps.Logger,
		now:     time.Now,
	}, nil
}

type plannedLine struct {
	item   models.OrderItem
	ean    string
	qty    int
	unit   decimal.Decimal
	amount int64
}

// Refund prices the lines at the order time, refunds the payment and
// reconciles the order. Nothing local changes unless the gateway accepts.
func (r *Reconciler) Refund(ctx context.Context, req Request) (*Result, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	lines, err := normalizeLines(paymentID, req.Lines)
	if err != nil {
		return nil, err
	}
	if r.logg != nil {
		ctx = r.logg.WithPaymentID(ctx, paymentID)
	}

	lock, err := r.locker.Obtain(ctx, lockScope, paymentID)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotObtained) {
			r.count(metrics.OutcomeConflict, 0)
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrRefundInProgress, "refund already in progress for payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire refund lock")
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && r.logg != nil {
			r.logg.Error(ctx, "release refund lock", err)
		}
	}()

	order, err := r.repo.FindOrderByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrOrderNotFound, "order not found for payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if r.logg != nil {
		ctx = r.logg.WithOrderID(ctx, order.GatewayOrderID)
	}

	plan, total, err := r.plan(ctx, order, lines)
	if err != nil {
		return nil, err
	}

	idempotencyKey := uuid.NewString()
	currency := r.gateway.Currency()
	refund := &square.PaymentRefund{Status: enums.RefundStatusCompleted, Currency: currency}
	if total > 0 {
		started := time.Now()
		refund, err = r.gateway.RefundPayment(ctx, square.RefundParams{
			IdempotencyKey: idempotencyKey,
			PaymentID:      paymentID,
			AmountMinor:    total,
			Reason:         req.Reason,
		})
		if r.metrics != nil {
			r.metrics.ObserveGateway("refund_payment", time.Since(started).Seconds(), err)
		}
		if err != nil {
			r.count(metrics.OutcomeRejected, 0)
			if r.logg != nil {
				r.logg.Error(ctx, "gateway refund failed", err)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.Join(ErrRefundRejected, err), "payment gateway refused the refund")
		}
		if refund == nil || !refund.Status.Accepted() {
			status := ""
			if refund != nil {
				status = refund.Status.String()
			}
			r.count(metrics.OutcomeRejected, 0)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ErrRefundRejected, fmt.Sprintf("refund status %q", status)).
				WithDetails(map[string]any{"status": status})
		}
		if refund.Currency == "" {
			refund.Currency = currency
		}
	}

	result := &Result{
		RefundID:    refund.ID,
		OrderID:     order.GatewayOrderID,
		Status:      refund.Status.String(),
		AmountMinor: total,
		Currency:    refund.Currency,
		Lines:       make([]LineResult, 0, len(plan)),
	}
	for _, line := range plan {
		result.Lines = append(result.Lines, LineResult{
			EAN:         line.ean,
			Quantity:    line.qty,
			UnitPrice:   line.unit.StringFixed(2),
			AmountMinor: line.amount,
		})
	}

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.reconcile(ctx, tx, order, plan, result, idempotencyKey)
	})
	if err != nil {
		r.count(metrics.OutcomeFailed, 0)
		if r.logg != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"refund_id":    result.RefundID,
				"amount_minor": total,
			})
			r.logg.Error(logCtx, "refund accepted by gateway but not reconciled locally", err)
		}
		return nil, err
	}

	r.count(metrics.OutcomeAccepted, total)
	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"refund_id":     result.RefundID,
			"amount_minor":  total,
			"order_deleted": result.OrderDeleted,
		})
		r.logg.Info(logCtx, "refund reconciled")
	}
	return result, nil
}

// History lists the refunds stored for a payment, oldest first. Entries
// outlive the order they refunded.
func (r *Reconciler) History(ctx context.Context, paymentID string) ([]HistoryEntry, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	rows, err := r.repo.ListByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list refunds")
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := HistoryEntry{
			RefundID:    row.GatewayRefundID,
			OrderID:     row.GatewayOrderID,
			Status:      row.Status,
			AmountMinor: row.AmountMinor,
			Currency:    row.Currency,
			CreatedAt:   row.CreatedAt.UTC(),
		}
		if len(row.Lines) > 0 {
			if err := json.Unmarshal(row.Lines, &entry.Lines); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode refund lines")
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *Reconciler) plan(ctx context.Context, order *models.Order, lines []LineInput) ([]plannedLine, int64, error) {
	items := make(map[string]models.OrderItem, len(order.Items))
	for _, item := range order.Items {
		if item.Product != nil {
			items[item.Product.EAN] = item
		}
	}

	plan := make([]plannedLine, 0, len(lines))
	var total int64
	for _, line := range lines {
		item, ok := items[line.EAN]
		if !ok {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrLineNotFound, fmt.Sprintf("ean %s not on order", line.EAN)).
				WithDetails(map[string]any{"ean": line.EAN})
		}
		if line.Quantity > item.Quantity {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrOverRefund,
				fmt.Sprintf("ean %s: refund %d exceeds %d remaining", line.EAN, line.Quantity, item.Quantity)).
				WithDetails(map[string]any{"ean": line.EAN, "requested": line.Quantity, "remaining": item.Quantity})
		}
		var gross decimal.Decimal
		if item.CustomPrice == nil {
			var err error
			gross, err = r.prices.Resolve(ctx, item.ProductID, order.OrderTime)
			if err != nil {
				return nil, 0, err
			}
		}
		unit := money.UnitPrice(gross, item.CustomPrice, item.PercentageModifier)
		amount := money.LineMinor(unit, line.Quantity)
		total += amount
		plan = append(plan, plannedLine{item: item, ean: line.EAN, qty: line.Quantity, unit: unit, amount: amount})
	}
	return plan, total, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tx *gorm.DB, order *models.Order, plan []plannedLine, result *Result, idempotencyKey string) error {
	repo := r.repo.WithTx(tx)
	eventLines := make([]payloads.OrderLine, 0, len(plan))
	for _, line := range plan {
		var (
			applied bool
			err     error
		)
		if line.qty == line.item.Quantity {
			applied, err = repo.DeleteItemIfQuantity(ctx, line.item.ID, line.qty)
		} else {
			applied, err = repo.DecrementItem(ctx, line.item.ID, line.qty)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order item")
		}
		if !applied {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrStaleOrder, fmt.Sprintf("ean %s changed during refund", line.ean))
		}
		if _, err := r.stock.Adjust(ctx, tx, line.item.ProductID, decimal.NewFromInt(int64(line.qty))); err != nil {
			return err
		}
		eventLines = append(eventLines, payloads.OrderLine{EAN: line.ean, Quantity: line.qty})
	}

	remaining, err := repo.CountItems(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count order items")
	}
	if remaining == 0 {
		if err := repo.DeleteOrder(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete refunded order")
		}
		result.OrderDeleted = true
	}

	linesJSON, err := json.Marshal(result.Lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode refund lines")
	}
	paymentID := ""
	if order.PaymentID != nil {
		paymentID = *order.PaymentID
	}
	audit := &models.Refund{
		OrderID:         order.ID,
		GatewayOrderID:  order.GatewayOrderID,
		PaymentID:       paymentID,
		GatewayRefundID: result.RefundID,
		Status:          result.Status,
		AmountMinor:     result.AmountMinor,
		Currency:        result.Currency,
		IdempotencyKey:  idempotencyKey,
		Lines:           linesJSON,
	}
	if err := repo.InsertRefund(ctx, audit); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert refund record")
	}

	refundedAt := r.now().UTC()
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.GatewayOrderID,
		OccurredAt:    refundedAt,
		Data: payloads.OrderRefundedEvent{
			OrderID:      order.GatewayOrderID,
			PaymentID:    paymentID,
			RefundID:     result.RefundID,
			Status:       result.Status,
			AmountMinor:  result.AmountMinor,
			Currency:     result.Currency,
			Lines:        eventLines,
			OrderDeleted: result.OrderDeleted,
		},
	}
	if err := r.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order refunded event")
	}
	return nil
}

func (r *Reconciler) count(outcome string, amountMinor int64) {
	if r.metrics != nil {
		r.metrics.IncRefund(outcome, amountMinor)
	}
}

// normalizeLines validates the request and merges repeated EANs.
func normalizeLines(paymentID string, lines []LineInput) ([]LineInput, error) {
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	merged := make([]LineInput, 0, len(lines))
	index := make(map[string]int, len(lines))
	for i, line := range lines {
		ean := strings.TrimSpace(line.EAN)
		if ean == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: ean is required", i)
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be at least 1", i)
		}
		if pos, ok := index[ean]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[ean] = len(merged)
		merged = append(merged, LineInput{EAN: ean, Quantity: line.Quantity})
	}
	return merged, nil
}
