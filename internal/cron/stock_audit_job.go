package cron

import (
	"context"
	"fmt"

	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

const defaultStockAuditLimit = 100

type negativeStockLister interface {
	ListNegativeStock(ctx context.Context, limit int) ([]models.Product, error)
}

type negativeStockGauge interface {
	SetNegativeProducts(n int)
}

type StockAuditJobParams struct {
	Logger   *logger.Logger
	Products negativeStockLister
	Gauge    negativeStockGauge
	Limit    int
}

// NewStockAuditJob reports products whose stock went below zero so they can
// be recounted.
func NewStockAuditJob(params StockAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultStockAuditLimit
	}
	return &stockAuditJob{
		logg:     params.Logger,
		products: params.Products,
		gauge:    params.Gauge,
		limit:    limit,
	}, nil
}

type stockAuditJob struct {
	logg     *logger.Logger
	products negativeStockLister
	gauge    negativeStockGauge
	limit    int
}

func (j *stockAuditJob) Name() string { return "stock-audit" }

func (j *stockAuditJob) Run(ctx context.Context) error {
	rows, err := j.products.ListNegativeStock(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("list negative stock: %w", err)
	}
	if j.gauge != nil {
		j.gauge.SetNegativeProducts(len(rows))
	}
	for _, p := range rows {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"ean":   p.EAN,
			"stock": p.Stock.String(),
		})
		j.logg.Warn(logCtx, "product stock below zero")
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"negative_products": len(rows),
		"truncated":         len(rows) == j.limit,
	})
	j.logg.Info(logCtx, "stock audit complete")
	return nil
}
