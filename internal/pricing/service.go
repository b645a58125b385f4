package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/money"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/outbox/payloads"
)

// Resolver answers "what did this product cost at instant t".
type Resolver interface {
	Resolve(ctx context.Context, productID int64, at time.Time) (decimal.Decimal, error)
	ResolveTx(ctx context.Context, tx *gorm.DB, productID int64, at time.Time) (decimal.Decimal, error)
}

// SetPriceInput opens a new price for a product.
type SetPriceInput struct {
	EAN         string
	Net         decimal.Decimal
	Gross       decimal.Decimal
	EffectiveAt *time.Time
	Reason      string
}

type Service struct {
	repo   *Repository
	tx     db.Runner
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the resolver. Set-price operations require tx and outbox;
// read-only callers may pass nil for both.
func NewService(repo *Repository, tx db.Runner, emitter outbox.Emitter, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	return &Service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Resolve returns the gross price effective at the instant.
func (s *Service) Resolve(ctx context.Context, productID int64, at time.Time) (decimal.Decimal, error) {
	return s.resolve(ctx, s.repo, productID, at)
}

// ResolveTx resolves inside the caller's transaction.
func (s *Service) ResolveTx(ctx context.Context, tx *gorm.DB, productID int64, at time.Time) (decimal.Decimal, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	return s.resolve(ctx, repo, productID, at)
}

// Current resolves the price effective now.
func (s *Service) Current(ctx context.Context, productID int64) (decimal.Decimal, error) {
	return s.Resolve(ctx, productID, s.now())
}

// ResolveByEAN resolves the current price of the product with the given EAN.
func (s *Service) ResolveByEAN(ctx context.Context, ean string) (decimal.Decimal, error) {
	product, err := s.repo.FindProductByEAN(ctx, strings.TrimSpace(ean))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return s.Current(ctx, product.ID)
}

func (s *Service) resolve(ctx context.Context, repo *Repository, productID int64, at time.Time) (decimal.Decimal, error) {
	rows, err := repo.FindEffective(ctx, productID, at, 2)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "query price history")
	}
	switch len(rows) {
	case 0:
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrPriceNotFound,
			fmt.Sprintf("no price for product %d at %s", productID, at.UTC().Format(time.RFC3339)))
	case 1:
		return rows[0].Gross, nil
	default:
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"product_id": productID,
				"at":         at.UTC(),
			})
			s.logg.Error(logCtx, "overlapping price history entries", ErrAmbiguousPrice)
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrAmbiguousPrice,
			fmt.Sprintf("ambiguous price for product %d", productID))
	}
}

// History returns every entry for the product ordered by start.
func (s *Service) History(ctx context.Context, ean string) ([]models.PriceHistory, error) {
	product, err := s.repo.FindProductByEAN(ctx, strings.TrimSpace(ean))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	rows, err := s.repo.ListByProduct(ctx, product.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list price history")
	}
	return rows, nil
}

// SetPrice closes the open entry at the effective instant and appends the
// new one. The product row is locked so concurrent changes serialize.
func (s *Service) SetPrice(ctx context.Context, input SetPriceInput) (*models.PriceHistory, error) {
	if s.tx == nil || s.outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing service not configured for writes")
	}
	ean := strings.TrimSpace(input.EAN)
	if ean == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ean is required")
	}
	if err := money.ValidateAmount(input.Gross); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid gross price")
	}
	if err := money.ValidateAmount(input.Net); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid net price")
	}
	if input.Net.GreaterThan(input.Gross) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "net price exceeds gross price")
	}
	effectiveAt := s.now().UTC()
	if input.EffectiveAt != nil {
		effectiveAt = input.EffectiveAt.UTC()
	}

	var created *models.PriceHistory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProductByEAN(ctx, ean)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if _, err := repo.LockProduct(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
		}

		latest, err := repo.FindLatestStart(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load latest price")
		}
		if latest != nil && !effectiveAt.After(latest.StartAt) {
			return pkgerrors.New(pkgerrors.CodeValidation, "effective time must be after the current price start").
				WithDetails(map[string]any{"current_start_at": latest.StartAt.UTC()})
		}

		open, err := repo.FindOpen(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load open price")
		}
		if open != nil {
			closed, err := repo.Close(ctx, open.ID, effectiveAt)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close open price")
			}
			if !closed {
				return pkgerrors.New(pkgerrors.CodeConflict, "price changed concurrently")
			}
		}

		entry := &models.PriceHistory{
			ProductID: product.ID,
			StartAt:   effectiveAt,
			Net:       money.Round(input.Net),
			Gross:     money.Round(input.Gross),
			Reason:    strings.TrimSpace(input.Reason),
		}
		if err := repo.Insert(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert price")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPriceChanged,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.EAN,
			Data: payloads.PriceChangedEvent{
				EAN:         product.EAN,
				Net:         entry.Net.StringFixed(2),
				Gross:       entry.Gross.StringFixed(2),
				EffectiveAt: effectiveAt,
				Reason:      entry.Reason,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit price changed event")
		}
		created = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"ean":          ean,
			"gross":        created.Gross.StringFixed(2),
			"effective_at": effectiveAt,
		})
		s.logg.Info(logCtx, "price updated")
	}
	return created, nil
}
