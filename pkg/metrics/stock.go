package metrics

import "github.com/prometheus/client_golang/prometheus"

// StockMetrics exposes the last stock audit result.
type StockMetrics struct {
	negativeProducts prometheus.Gauge
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "epos_products_negative_stock",
		Help: "Products below zero stock at the last audit.",
	})
	reg.MustRegister(g)
	return &StockMetrics{negativeProducts: g}
}

func (m *StockMetrics) SetNegativeProducts(n int) {
	if m == nil || m.negativeProducts == nil {
		return
	}
	m.negativeProducts.Set(float64(n))
}
