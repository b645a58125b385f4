package products

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/internal/pricing"
	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/money"
)

type priceReader interface {
	Current(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// Service exposes the product lookups the till uses.
type Service interface {
	Search(ctx context.Context, query string) ([]SearchResultDTO, error)
	Info(ctx context.Context, ean string) (*ProductInfoDTO, error)
	BulkAdd(ctx context.Context, inputs []NewProductInput) (*BulkAddResult, error)
}

type service struct {
	repo   *Repository
	prices *pricing.Repository
	pricer priceReader
	tx     db.Runner
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the product service.
func NewService(repo *Repository, prices *pricing.Repository, pricer priceReader, tx db.Runner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if prices == nil {
		return nil, fmt.Errorf("price repository required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("price resolver required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:   repo,
		prices: prices,
		pricer: pricer,
		tx:     tx,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) Search(ctx context.Context, query string) ([]SearchResultDTO, error) {
	if strings.TrimSpace(query) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "search query is required")
	}
	rows, err := s.repo.SearchByDescription(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search products")
	}
	out := make([]SearchResultDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, SearchResultDTO{EAN: row.EAN, Description: row.Description})
	}
	return out, nil
}

func (s *service) Info(ctx context.Context, ean string) (*ProductInfoDTO, error) {
	ean = strings.TrimSpace(ean)
	if ean == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ean is required")
	}
	product, err := s.repo.FindByEAN(ctx, ean)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	gross, err := s.pricer.Current(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	return NewProductInfoDTO(product, gross), nil
}

// BulkAdd creates products with their opening price in one transaction.
// Existing EANs are skipped so seeding can be re-run.
func (s *service) BulkAdd(ctx context.Context, inputs []NewProductInput) (*BulkAddResult, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no products supplied")
	}
	for i, input := range inputs {
		if err := validateNewProduct(input); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("product %d invalid", i))
		}
	}

	result := &BulkAddResult{Skipped: []string{}}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		prices := s.prices.WithTx(tx)
		for _, input := range inputs {
			category := input.TaxCategory
			if category == "" {
				category = string(enums.TaxCategoryStandard)
			}
			product := &models.Product{
				EAN:         strings.TrimSpace(input.EAN),
				Description: strings.TrimSpace(input.Description),
				TaxCategory: category,
				Stock:       input.Stock,
			}
			created, err := repo.CreateIgnoringDuplicates(ctx, product)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert product")
			}
			if !created {
				result.Skipped = append(result.Skipped, product.EAN)
				continue
			}
			from := s.now().UTC()
			if input.PriceFrom != nil {
				from = input.PriceFrom.UTC()
			}
			entry := &models.PriceHistory{
				ProductID: product.ID,
				StartAt:   from,
				Net:       money.Round(input.Net),
				Gross:     money.Round(input.Gross),
				Reason:    "initial price",
			}
			if err := prices.Insert(ctx, entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert opening price")
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"created": result.Created,
			"skipped": len(result.Skipped),
		})
		s.logg.Info(logCtx, "products added")
	}
	return result, nil
}

func validateNewProduct(input NewProductInput) error {
	if strings.TrimSpace(input.EAN) == "" {
		return fmt.Errorf("ean is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if input.TaxCategory != "" {
		if _, err := enums.ParseTaxCategory(input.TaxCategory); err != nil {
			return err
		}
	}
	if err := money.ValidateAmount(input.Gross); err != nil {
		return err
	}
	if err := money.ValidateAmount(input.Net); err != nil {
		return err
	}
	if input.Net.GreaterThan(input.Gross) {
		return fmt.Errorf("net price exceeds gross price")
	}
	return nil
}
