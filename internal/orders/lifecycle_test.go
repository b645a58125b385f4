package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/epos-backend/internal/pricing"
	"github.com/tillpoint/epos-backend/internal/refunds"
	"github.com/tillpoint/epos-backend/internal/settlement"
	"github.com/tillpoint/epos-backend/internal/stock"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/dbtest"
	"github.com/tillpoint/epos-backend/pkg/enums"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/redis"
	"github.com/tillpoint/epos-backend/pkg/square"
)

type refundGateway struct {
	mu    sync.Mutex
	calls []square.RefundParams
}

func (g *refundGateway) RefundPayment(_ context.Context, params square.RefundParams) (*square.PaymentRefund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, params)
	return &square.PaymentRefund{ID: "rf-1", Status: enums.RefundStatusCompleted, AmountMinor: params.AmountMinor, Currency: "GBP"}, nil
}

func (g *refundGateway) Currency() string { return "GBP" }

type freeLock struct{}

func (freeLock) Release(context.Context) error { return nil }

type freeLocker struct{}

func (freeLocker) Obtain(context.Context, string, string) (redis.Lock, error) { return freeLock{}, nil }

func TestRefundReturnsWhatTheOrderCharged(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "901", Description: "Scones", Gross: "5.00", Stock: "10"})
	dbtest.SeedProduct(t, f.conn, dbtest.ProductFixture{EAN: "902", Description: "Jam", Gross: "3.33", Stock: "10"})
	ctx := context.Background()

	created, err := f.svc.Create(ctx, []LineInput{
		{EAN: "901", Quantity: 3, CustomPrice: dec("1.50"), DiscountPercent: dec("33.33")},
		{EAN: "902", Quantity: 2, DiscountPercent: dec("12.35")},
	})
	require.NoError(t, err)
	// 3 x round(1.50 * 0.6667 = 1.00005 -> 1.00) + 2 x round(3.33 * 0.8765 = 2.918745 -> 2.92)
	assert.EqualValues(t, 300+584, created.TotalMinor)

	ledger := stock.NewLedger(nil, nil)
	emitter := outbox.NewService(outbox.NewRepository(f.conn), nil)
	settler, err := settlement.NewHandler(db.FromGorm(f.conn), ledger, emitter, nil, nil)
	require.NoError(t, err)
	outcome, err := settler.OnPaymentNotification(ctx, settlement.Notification{
		GatewayOrderID: created.OrderID,
		Status:         "COMPLETED",
		PaymentID:      "pay-901",
	})
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeSettled, outcome)

	pricer, err := pricing.NewService(pricing.NewRepository(f.conn), nil, nil, nil)
	require.NoError(t, err)
	gateway := &refundGateway{}
	reconciler, err := refunds.NewReconciler(refunds.Deps{
		Repo:    refunds.NewRepository(f.conn),
		Prices:  pricer,
		Gateway: gateway,
		Locker:  freeLocker{},
		Stock:   ledger,
		Tx:      db.FromGorm(f.conn),
		Outbox:  emitter,
	})
	require.NoError(t, err)

	result, err := reconciler.Refund(ctx, refunds.Request{
		PaymentID: "pay-901",
		Lines:     []refunds.LineInput{{EAN: "901", Quantity: 3}, {EAN: "902", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, created.TotalMinor, result.AmountMinor)
	assert.True(t, result.OrderDeleted)
	require.Len(t, gateway.calls, 1)
	assert.Equal(t, created.TotalMinor, gateway.calls[0].AmountMinor)

	require.Len(t, f.gateway.calls, 1)
	for i, line := range f.gateway.calls[0].Lines {
		assert.Equal(t, line.AmountMinor*int64(line.Quantity), result.Lines[i].AmountMinor, line.Name)
	}
}
