package refunds

import (
	"context"
	"net/http"

	"github.com/tillpoint/epos-backend/api/responses"
	"github.com/tillpoint/epos-backend/api/validators"
	internalrefunds "github.com/tillpoint/epos-backend/internal/refunds"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

type Refunder interface {
	Refund(ctx context.Context, req internalrefunds.Request) (*internalrefunds.Result, error)
	History(ctx context.Context, paymentID string) ([]internalrefunds.HistoryEntry, error)
}

// Create refunds lines of a settled order identified by its payment id.
func Create(svc Refunder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		var req internalrefunds.Request
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.PaymentID = validators.SanitizeString(req.PaymentID, 192)
		req.Reason = validators.SanitizeString(req.Reason, 192)

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, req.PaymentID)
		}

		result, err := svc.Refund(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// List returns the refunds already taken against a payment.
func List(svc Refunder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		paymentID := validators.SanitizeString(r.URL.Query().Get("payment_id"), 192)
		if paymentID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment_id query parameter required").
				WithDetails(map[string]any{"field": "payment_id"}))
			return
		}
		entries, err := svc.History(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
