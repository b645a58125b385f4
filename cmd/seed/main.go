package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tillpoint/epos-backend/api/validators"
	"github.com/tillpoint/epos-backend/internal/pricing"
	"github.com/tillpoint/epos-backend/internal/products"
	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/migrate"
)

const serviceName = "epos-seed"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	file := flag.String("file", "", "JSON array of products to add")
	allowProd := flag.Bool("allow-prod", false, "permit seeding a production database")
	flag.Parse()
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: seed -file products.json [-allow-prod]")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
	})
	if cfg.App.IsProd() && !*allowProd {
		logg.Warn(context.Background(), "refusing to seed production without -allow-prod")
		os.Exit(2)
	}

	inputs, err := readProducts(*file)
	if err != nil {
		logg.Error(context.Background(), "failed to read product file", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	priceRepo := pricing.NewRepository(dbClient.DB())
	prices, err := pricing.NewService(priceRepo, nil, nil, logg)
	if err != nil {
		logg.Error(ctx, "failed to build price service", err)
		os.Exit(1)
	}
	svc, err := products.NewService(products.NewRepository(dbClient.DB()), priceRepo, prices, dbClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to build product service", err)
		os.Exit(1)
	}

	result, err := svc.BulkAdd(ctx, inputs)
	if err != nil {
		logg.Error(ctx, "seeding failed", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"file":    *file,
		"created": result.Created,
		"skipped": len(result.Skipped),
	})
	logg.Info(ctx, "products seeded")
}

func readProducts(path string) ([]products.NewProductInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inputs []products.NewProductInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%s contains no products", path)
	}
	for i := range inputs {
		if err := validators.Struct(&inputs[i]); err != nil {
			return nil, fmt.Errorf("product %d in %s: %w", i, path, err)
		}
	}
	return inputs, nil
}
