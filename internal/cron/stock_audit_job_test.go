package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

type fakeNegativeStock struct {
	rows  []models.Product
	err   error
	limit int
}

func (f *fakeNegativeStock) ListNegativeStock(_ context.Context, limit int) ([]models.Product, error) {
	f.limit = limit
	return f.rows, f.err
}

type fakeGauge struct {
	value int
	set   bool
}

func (f *fakeGauge) SetNegativeProducts(n int) {
	f.value = n
	f.set = true
}

func TestStockAuditJobReportsNegativeProducts(t *testing.T) {
	lister := &fakeNegativeStock{rows: []models.Product{
		{EAN: "5000000000001", Stock: decimal.RequireFromString("-3")},
		{EAN: "5000000000002", Stock: decimal.RequireFromString("-0.250")},
	}}
	gauge := &fakeGauge{}
	job, err := NewStockAuditJob(StockAuditJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Products: lister,
		Gauge:    gauge,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "stock-audit", job.Name())
	assert.Equal(t, defaultStockAuditLimit, lister.limit)
	assert.Equal(t, 2, gauge.value)
}

func TestStockAuditJobLeavesGaugeOnError(t *testing.T) {
	gauge := &fakeGauge{}
	job, err := NewStockAuditJob(StockAuditJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Products: &fakeNegativeStock{err: errors.New("db gone")},
		Gauge:    gauge,
		Limit:    5,
	})
	require.NoError(t, err)

	assert.Error(t, job.Run(context.Background()))
	assert.False(t, gauge.set)
}
