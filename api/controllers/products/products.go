package products

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tillpoint/epos-backend/api/responses"
	"github.com/tillpoint/epos-backend/api/validators"
	"github.com/tillpoint/epos-backend/internal/pricing"
	internalproducts "github.com/tillpoint/epos-backend/internal/products"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

const maxQueryLength = 128

// PriceService is the price-history surface the product routes need.
type PriceService interface {
	History(ctx context.Context, ean string) ([]models.PriceHistory, error)
	SetPrice(ctx context.Context, input pricing.SetPriceInput) (*models.PriceHistory, error)
}

type setPriceRequest struct {
	Net         decimal.Decimal `json:"net"`
	Gross       decimal.Decimal `json:"gross"`
	EffectiveAt *time.Time      `json:"effective_at,omitempty"`
	Reason      string          `json:"reason" validate:"max=192"`
}

// PriceEntryDTO is one effective-dated price.
type PriceEntryDTO struct {
	StartAt time.Time  `json:"start_at"`
	EndAt   *time.Time `json:"end_at,omitempty"`
	Net     string     `json:"net"`
	Gross   string     `json:"gross"`
	Reason  string     `json:"reason,omitempty"`
}

func newPriceEntryDTO(row models.PriceHistory) PriceEntryDTO {
	return PriceEntryDTO{
		StartAt: row.StartAt.UTC(),
		EndAt:   row.EndAt,
		Net:     row.Net.StringFixed(2),
		Gross:   row.Gross.StringFixed(2),
		Reason:  row.Reason,
	}
}

func Search(svc internalproducts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		query := validators.SanitizeString(r.URL.Query().Get("q"), maxQueryLength)
		results, err := svc.Search(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, results)
	}
}

func Info(svc internalproducts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		ean, err := parseEAN(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		info, err := svc.Info(r.Context(), ean)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

func PriceHistory(svc PriceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "price service unavailable"))
			return
		}
		ean, err := parseEAN(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.History(r.Context(), ean)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]PriceEntryDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, newPriceEntryDTO(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// SetPrice retires the open price and appends a new one.
func SetPrice(svc PriceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "price service unavailable"))
			return
		}
		ean, err := parseEAN(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setPriceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.SetPrice(r.Context(), pricing.SetPriceInput{
			EAN:         ean,
			Net:         req.Net,
			Gross:       req.Gross,
			EffectiveAt: req.EffectiveAt,
			Reason:      validators.SanitizeString(req.Reason, 192),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPriceEntryDTO(*entry))
	}
}

func parseEAN(r *http.Request) (string, error) {
	ean := strings.TrimSpace(chi.URLParam(r, "ean"))
	if ean == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "ean is required")
	}
	if !validators.ValidEAN(ean) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "ean is invalid")
	}
	return ean, nil
}
