package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tillpoint/epos-backend/api/controllers"
	ordercontrollers "github.com/tillpoint/epos-backend/api/controllers/orders"
	productcontrollers "github.com/tillpoint/epos-backend/api/controllers/products"
	refundcontrollers "github.com/tillpoint/epos-backend/api/controllers/refunds"
	webhookcontrollers "github.com/tillpoint/epos-backend/api/controllers/webhooks"
	"github.com/tillpoint/epos-backend/api/middleware"
	"github.com/tillpoint/epos-backend/internal/orders"
	"github.com/tillpoint/epos-backend/internal/products"
	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/metrics"
	"github.com/tillpoint/epos-backend/pkg/redis"
)

// Deps carries everything the HTTP surface is wired to.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      controllers.Pinger
	Redis   controllers.Pinger
	Store   redis.IdempotencyStore
	Metrics *metrics.HTTPMetrics
	// Gatherer backs /metrics; nil falls back to the default registry.
	Gatherer prometheus.Gatherer

	Orders   orders.Service
	Refunds  refundcontrollers.Refunder
	Products products.Service
	Prices   productcontrollers.PriceService

	SquareVerifier webhookcontrollers.WebhookVerifier
	SquareWebhook  webhookcontrollers.SquareWebhookService
	WebhookGuard   webhookcontrollers.WebhookGuard
}

func NewRouter(d Deps) http.Handler {
	logg := d.Logger
	env := ""
	if d.Config != nil {
		env = d.Config.App.Env
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.Metrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(env))
		r.Get("/ready", controllers.HealthReady(env, map[string]controllers.Pinger{
			"db":    d.DB,
			"redis": d.Redis,
		}, logg))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/api/v1/webhooks/square", webhookcontrollers.SquareWebhook(d.SquareWebhook, d.SquareVerifier, d.WebhookGuard, logg))

	idem := middleware.Idempotency(d.Store, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/orders", ordercontrollers.List(d.Orders, logg))
		r.With(idem).Post("/orders", ordercontrollers.Create(d.Orders, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(d.Orders, logg))
		r.Get("/orders/{orderId}/status", ordercontrollers.Status(d.Orders, logg))
		r.With(idem).Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(d.Orders, logg))

		r.Get("/refunds", refundcontrollers.List(d.Refunds, logg))
		r.With(idem).Post("/refunds", refundcontrollers.Create(d.Refunds, logg))

		r.Get("/products", productcontrollers.Search(d.Products, logg))
		r.Get("/products/{ean}", productcontrollers.Info(d.Products, logg))
		r.Get("/products/{ean}/prices", productcontrollers.PriceHistory(d.Prices, logg))
		r.With(idem).Post("/products/{ean}/prices", productcontrollers.SetPrice(d.Prices, logg))
	})

	return r
}
