package refunds

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/internal/pricing"
	"github.com/tillpoint/epos-backend/internal/stock"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/dbtest"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/redis"
	"github.com/tillpoint/epos-backend/pkg/square"
)

type stubGateway struct {
	mu     sync.Mutex
	calls  []square.RefundParams
	status enums.RefundStatus
	err    error
	hook   func()
}

func (s *stubGateway) RefundPayment(ctx context.Context, params square.RefundParams) (*square.PaymentRefund, error) {
	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.mu.Unlock()
	if s.hook != nil {
		s.hook()
	}
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == "" {
		status = enums.RefundStatusPending
	}
	return &square.PaymentRefund{ID: "rf-1", Status: status, AmountMinor: params.AmountMinor, Currency: "GBP"}, nil
}

func (s *stubGateway) Currency() string { return "GBP" }

type stubLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

type stubLock struct {
	locker *stubLocker
	key    string
}

func (l stubLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	return nil
}

func (s *stubLocker) Obtain(_ context.Context, scope, id string) (redis.Lock, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scope + ":" + id
	if s.held[key] {
		return nil, redis.ErrLockNotObtained
	}
	if s.held == nil {
		s.held = map[string]bool{}
	}
	s.held[key] = true
	return stubLock{locker: s, key: key}, nil
}

type fixture struct {
	rec     *Reconciler
	conn    *gorm.DB
	gateway *stubGateway
	locker  *stubLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	pricer, err := pricing.NewService(pricing.NewRepository(conn), nil, nil, nil)
	require.NoError(t, err)
	gateway := &stubGateway{}
	locker := &stubLocker{}
	rec, err := NewReconciler(Deps{
		Repo:    NewRepository(conn),
		Prices:  pricer,
		Gateway: gateway,
		Locker:  locker,
		Stock:   stock.NewLedger(nil, nil),
		Tx:      db.FromGorm(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return &fixture{rec: rec, conn: conn, gateway: gateway, locker: locker}
}

type itemSpec struct {
	productID int64
	qty       int
	discount  *decimal.Decimal
	custom    *decimal.Decimal
}

func (f *fixture) settledOrder(t *testing.T, paymentID string, orderTime time.Time, items ...itemSpec) models.Order {
	t.Helper()
	pid := paymentID
	order := models.Order{GatewayOrderID: "sq-" + paymentID, OrderTime: orderTime.UTC(), IsSettled: true, PaymentID: &pid, IsSale: true}
	require.NoError(t, f.conn.Omit("Items").Create(&order).Error)
	for _, spec := range items {
		item := models.OrderItem{OrderID: order.ID, ProductID: spec.productID, Quantity: spec.qty, PercentageModifier: spec.discount, CustomPrice: spec.custom}
		require.NoError(t, f.conn.Omit("Product").Create(&item).Error)
	}
	return order
}

func dec(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func TestNewReconcilerRequiresDependencies(t *testing.T) {
	_, err := NewReconciler(Deps{})
	require.Error(t, err)
}

func TestRefundUsesPriceAtOrderTime(t *testing.T) {
	f := newFixture(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "P", Stock: "0"})
	dbtest.SeedPrice(t, f.conn, product.ID, "2.00", t0.Add(-time.Hour), &t1)
	dbtest.SeedPrice(t, f.conn, product.ID, "2.40", t1, nil)
	f.settledOrder(t, "pay-1", t0, itemSpec{productID: product.ID, qty: 2})

	result, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-1", Lines: []LineInput{{EAN: "P", Quantity: 1}}})
	require.NoError(t, err)
	assert.EqualValues(t, 200, result.AmountMinor)
	assert.Equal(t, "GBP", result.Currency)
	assert.Equal(t, "PENDING", result.Status)
	assert.False(t, result.OrderDeleted)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, "2.00", result.Lines[0].UnitPrice)

	require.Len(t, f.gateway.calls, 1)
	assert.EqualValues(t, 200, f.gateway.calls[0].AmountMinor)
	assert.Equal(t, "pay-1", f.gateway.calls[0].PaymentID)
	assert.NotEmpty(t, f.gateway.calls[0].IdempotencyKey)

	var item models.OrderItem
	require.NoError(t, f.conn.First(&item, "product_id = ?", product.ID).Error)
	assert.Equal(t, 1, item.Quantity)
	assert.True(t, decimal.NewFromInt(1).Equal(dbtest.StockOf(t, f.conn, product.ID)))

	var audit models.Refund
	require.NoError(t, f.conn.First(&audit).Error)
	assert.Equal(t, "rf-1", audit.GatewayRefundID)
	assert.EqualValues(t, 200, audit.AmountMinor)
	var lines []LineResult
	require.NoError(t, json.Unmarshal(audit.Lines, &lines))
	assert.Len(t, lines, 1)
	assert.EqualValues(t, 1, dbtest.CountOutbox(t, f.conn, string(enums.EventOrderRefunded)))
}

func TestFullRefundDeletesOrder(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "Q", Stock: "4", Gross: "1.50"})
	f.settledOrder(t, "pay-2", orderTime, itemSpec{productID: product.ID, qty: 3})

	result, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-2", Lines: []LineInput{{EAN: "Q", Quantity: 3}}})
	require.NoError(t, err)
	assert.True(t, result.OrderDeleted)
	assert.EqualValues(t, 450, result.AmountMinor)

	var orders, items int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, f.conn.Model(&models.OrderItem{}).Count(&items).Error)
	assert.Zero(t, orders)
	assert.Zero(t, items)
	assert.True(t, decimal.NewFromInt(7).Equal(dbtest.StockOf(t, f.conn, product.ID)))

	_, err = f.rec.Refund(context.Background(), Request{PaymentID: "pay-2", Lines: []LineInput{{EAN: "Q", Quantity: 1}}})
	assert.True(t, stdErrors.Is(err, ErrOrderNotFound))
}

func TestRefundAppliesStoredOverrides(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	discounted := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "D", Gross: "3.33"})
	custom := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "C", Gross: "9.99"})
	f.settledOrder(t, "pay-3", orderTime,
		itemSpec{productID: discounted.ID, qty: 3, discount: dec("10")},
		itemSpec{productID: custom.ID, qty: 2, custom: dec("0.50"), discount: dec("50")},
	)

	result, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-3", Lines: []LineInput{
		{EAN: "D", Quantity: 2},
		{EAN: "C", Quantity: 1},
	}})
	require.NoError(t, err)
	// 2 x round(2.997) = 600, 1 x round(0.25) = 25
	assert.EqualValues(t, 625, result.AmountMinor)
	assert.Equal(t, "3.00", result.Lines[0].UnitPrice)
	assert.Equal(t, "0.25", result.Lines[1].UnitPrice)
}

func TestRefundMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "M", Gross: "1.00"})
	f.settledOrder(t, "pay-4", orderTime, itemSpec{productID: product.ID, qty: 3})

	result, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-4", Lines: []LineInput{
		{EAN: "M", Quantity: 1},
		{EAN: " M ", Quantity: 1},
	}})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, 2, result.Lines[0].Quantity)
	assert.EqualValues(t, 200, result.AmountMinor)
}

func TestOverRefundIsRejected(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "O", Stock: "5", Gross: "1.00"})
	f.settledOrder(t, "pay-5", orderTime, itemSpec{productID: product.ID, qty: 2})

	_, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-5", Lines: []LineInput{{EAN: "O", Quantity: 3}}})
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, ErrOverRefund))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.Empty(t, f.gateway.calls)
	assert.True(t, decimal.NewFromInt(5).Equal(dbtest.StockOf(t, f.conn, product.ID)))
}

func TestRefundLookupErrors(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "L", Gross: "1.00"})
	dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "other", Gross: "1.00"})
	f.settledOrder(t, "pay-6", orderTime, itemSpec{productID: product.ID, qty: 1})

	_, err := f.rec.Refund(context.Background(), Request{PaymentID: "missing", Lines: []LineInput{{EAN: "L", Quantity: 1}}})
	assert.True(t, stdErrors.Is(err, ErrOrderNotFound))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.rec.Refund(context.Background(), Request{PaymentID: "pay-6", Lines: []LineInput{{EAN: "other", Quantity: 1}}})
	assert.True(t, stdErrors.Is(err, ErrLineNotFound))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	for _, req := range []Request{
		{PaymentID: "", Lines: []LineInput{{EAN: "L", Quantity: 1}}},
		{PaymentID: "pay-6"},
		{PaymentID: "pay-6", Lines: []LineInput{{EAN: "L", Quantity: 0}}},
		{PaymentID: "pay-6", Lines: []LineInput{{EAN: "", Quantity: 1}}},
	} {
		_, err = f.rec.Refund(context.Background(), req)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err), "%+v", req)
	}
	assert.Empty(t, f.gateway.calls)
}

func TestGatewayFailureMutatesNothing(t *testing.T) {
	cases := map[string]func(g *stubGateway){
		"error":    func(g *stubGateway) { g.err = pkgerrors.New(pkgerrors.CodeDependency, "square down") },
		"rejected": func(g *stubGateway) { g.status = enums.RefundStatusRejected },
		"failed":   func(g *stubGateway) { g.status = enums.RefundStatusFailed },
	}
	for name, configure := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			configure(f.gateway)
			orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
			product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "G", Stock: "5", Gross: "1.00"})
			f.settledOrder(t, "pay-g", orderTime, itemSpec{productID: product.ID, qty: 2})

			_, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-g", Lines: []LineInput{{EAN: "G", Quantity: 2}}})
			require.Error(t, err)
			assert.True(t, stdErrors.Is(err, ErrRefundRejected))
			assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

			var item models.OrderItem
			require.NoError(t, f.conn.First(&item).Error)
			assert.Equal(t, 2, item.Quantity)
			assert.True(t, decimal.NewFromInt(5).Equal(dbtest.StockOf(t, f.conn, product.ID)))
			var refunds int64
			require.NoError(t, f.conn.Model(&models.Refund{}).Count(&refunds).Error)
			assert.Zero(t, refunds)
			assert.EqualValues(t, 0, dbtest.CountOutbox(t, f.conn, string(enums.EventOrderRefunded)))
		})
	}
}

func TestConcurrentRefundIsRejectedWhileLocked(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "R", Gross: "1.00"})
	f.settledOrder(t, "pay-r", orderTime, itemSpec{productID: product.ID, qty: 2})

	var inner error
	f.gateway.hook = func() {
		f.gateway.hook = nil
		_, inner = f.rec.Refund(context.Background(), Request{PaymentID: "pay-r", Lines: []LineInput{{EAN: "R", Quantity: 1}}})
	}
	_, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-r", Lines: []LineInput{{EAN: "R", Quantity: 1}}})
	require.NoError(t, err)
	require.Error(t, inner)
	assert.True(t, stdErrors.Is(inner, ErrRefundInProgress))
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(inner))

	// lock released afterwards
	_, err = f.rec.Refund(context.Background(), Request{PaymentID: "pay-r", Lines: []LineInput{{EAN: "R", Quantity: 1}}})
	require.NoError(t, err)
}

func TestStaleOrderRollsBack(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "S", Stock: "0", Gross: "1.00"})
	f.settledOrder(t, "pay-s", orderTime, itemSpec{productID: product.ID, qty: 3})

	// the line shrinks between planning and reconciliation
	f.gateway.hook = func() {
		require.NoError(t, f.conn.Exec("UPDATE order_items SET quantity = 1").Error)
	}
	_, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-s", Lines: []LineInput{{EAN: "S", Quantity: 2}}})
	require.Error(t, err)
	assert.True(t, stdErrors.Is(err, ErrStaleOrder))
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	assert.True(t, decimal.Zero.Equal(dbtest.StockOf(t, f.conn, product.ID)))
	var refunds int64
	require.NoError(t, f.conn.Model(&models.Refund{}).Count(&refunds).Error)
	assert.Zero(t, refunds)
}

func TestLockBackendFailure(t *testing.T) {
	f := newFixture(t)
	f.locker.err = stdErrors.New("redis down")
	_, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay", Lines: []LineInput{{EAN: "x", Quantity: 1}}})
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestZeroPricedRefundSkipsGateway(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "Z", Stock: "0", Gross: "1.00"})
	f.settledOrder(t, "pay-z", orderTime, itemSpec{productID: product.ID, qty: 1, custom: dec("0")})

	result, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-z", Lines: []LineInput{{EAN: "Z", Quantity: 1}}})
	require.NoError(t, err)
	assert.Zero(t, result.AmountMinor)
	assert.True(t, result.OrderDeleted)
	assert.Empty(t, f.gateway.calls)
	assert.True(t, decimal.NewFromInt(1).Equal(dbtest.StockOf(t, f.conn, product.ID)))
}

func TestHistoryOutlivesDeletedOrder(t *testing.T) {
	f := newFixture(t)
	orderTime := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	product := dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "H", Stock: "0", Gross: "2.00"})
	f.settledOrder(t, "pay-h", orderTime, itemSpec{productID: product.ID, qty: 2})

	_, err := f.rec.Refund(context.Background(), Request{PaymentID: "pay-h", Lines: []LineInput{{EAN: "H", Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.rec.Refund(context.Background(), Request{PaymentID: "pay-h", Lines: []LineInput{{EAN: "H", Quantity: 1}}})
	require.NoError(t, err)

	history, err := f.rec.History(context.Background(), " pay-h ")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "sq-pay-h", history[0].OrderID)
	assert.EqualValues(t, 200, history[1].AmountMinor)
	require.Len(t, history[1].Lines, 1)
	assert.Equal(t, "H", history[1].Lines[0].EAN)

	empty, err := f.rec.History(context.Background(), "pay-unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.rec.History(context.Background(), "")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
