package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Order lifecycle outcomes used as label values.
const (
	OutcomeSettled   = "settled"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

// OrderMetrics counts order, settlement, refund and stock events.
type OrderMetrics struct {
	ordersCreated  prometheus.Counter
	settlements    *prometheus.CounterVec
	refunds        *prometheus.CounterVec
	refundedMinor  prometheus.Counter
	stockNegative  prometheus.Counter
	gatewayLatency *prometheus.HistogramVec
}

// NewOrderMetrics registers the order metrics. A nil registerer yields a no-op
// collector.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epos_orders_created_total",
			Help: "Orders persisted after a payment link was issued.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epos_settlements_total",
			Help: "Payment notifications by settlement outcome.",
		}, []string{"outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epos_refunds_total",
			Help: "Refund requests by outcome.",
		}, []string{"outcome"}),
		refundedMinor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epos_refunded_minor_units_total",
			Help: "Sum of accepted refunds in minor currency units.",
		}),
		stockNegative: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epos_stock_negative_total",
			Help: "Stock adjustments that left a product below zero.",
		}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "epos_gateway_request_duration_seconds",
			Help:    "Payment gateway call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(m.ordersCreated, m.settlements, m.refunds, m.refundedMinor, m.stockNegative, m.gatewayLatency)
	return m
}

func (m *OrderMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *OrderMetrics) IncSettlement(outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRefund counts a refund outcome; accepted refunds also add their amount.
func (m *OrderMetrics) IncRefund(outcome string, amountMinor int64) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == OutcomeAccepted && amountMinor > 0 {
		m.refundedMinor.Add(float64(amountMinor))
	}
}

func (m *OrderMetrics) IncStockNegative() {
	if m == nil || m.stockNegative == nil {
		return
	}
	m.stockNegative.Inc()
}

// ObserveGateway records one gateway call.
func (m *OrderMetrics) ObserveGateway(operation string, seconds float64, err error) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(operation), result).Observe(seconds)
}
