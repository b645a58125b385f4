package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/tillpoint/epos-backend/api/routes"
	"github.com/tillpoint/epos-backend/internal/orders"
	"github.com/tillpoint/epos-backend/internal/pricing"
	"github.com/tillpoint/epos-backend/internal/products"
	"github.com/tillpoint/epos-backend/internal/refunds"
	"github.com/tillpoint/epos-backend/internal/settlement"
	"github.com/tillpoint/epos-backend/internal/stock"
	squarewebhook "github.com/tillpoint/epos-backend/internal/webhooks/square"
	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/metrics"
	"github.com/tillpoint/epos-backend/pkg/migrate"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/redis"
	"github.com/tillpoint/epos-backend/pkg/square"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return err
	}

	locker, err := redis.NewLocker(redisClient, cfg.Refund.LockTTL)
	if err != nil {
		return err
	}

	reg := prometheus.DefaultRegisterer
	orderMetrics := metrics.NewOrderMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ledger := stock.NewLedger(orderMetrics, logg)

	priceRepo := pricing.NewRepository(dbClient.DB())
	prices, err := pricing.NewService(priceRepo, dbClient, emitter, logg)
	if err != nil {
		return err
	}

	productRepo := products.NewRepository(dbClient.DB())
	productService, err := products.NewService(productRepo, priceRepo, prices, dbClient, logg)
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.Deps{
		Repo:     orders.NewRepository(dbClient.DB()),
		Products: productRepo,
		Prices:   prices,
		Gateway:  squareClient,
		Tx:       dbClient,
		Outbox:   emitter,
		Metrics:  orderMetrics,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	reconciler, err := refunds.NewReconciler(refunds.Deps{
		Repo:    refunds.NewRepository(dbClient.DB()),
		Prices:  prices,
		Gateway: squareClient,
		Locker:  locker,
		Stock:   ledger,
		Tx:      dbClient,
		Outbox:  emitter,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	settler, err := settlement.NewHandler(dbClient, ledger, emitter, orderMetrics, logg)
	if err != nil {
		return err
	}
	webhookService, err := squarewebhook.NewService(settler, logg)
	if err != nil {
		return err
	}
	guard, err := squarewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "square-webhook")
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"square_env": squareClient.Environment(),
		"currency":   squareClient.Currency(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Store:          redisClient,
			Metrics:        httpMetrics,
			Orders:         orderService,
			Refunds:        reconciler,
			Products:       productService,
			Prices:         prices,
			SquareVerifier: squareClient,
			SquareWebhook:  webhookService,
			WebhookGuard:   guard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
