package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tillpoint/epos-backend/api/responses"
	squarewebhook "github.com/tillpoint/epos-backend/internal/webhooks/square"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/square"
)

const maxWebhookBody = 1 << 20

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

// WebhookGuard dedupes deliveries by event id.
type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type WebhookVerifier interface {
	VerifyWebhook(body []byte, header string) bool
}

type squareWebhook struct {
	svc      SquareWebhookService
	verifier WebhookVerifier
	guard    WebhookGuard
	logg     *logger.Logger
}

// SquareWebhook accepts signed Square payment notifications. A delivery is
// marked seen before settlement runs and released again if settlement fails,
// so Square's retry is processed rather than swallowed.
func SquareWebhook(svc SquareWebhookService, verifier WebhookVerifier, guard WebhookGuard, logg *logger.Logger) http.HandlerFunc {
	h := &squareWebhook{svc: svc, verifier: verifier, guard: guard, logg: logg}
	return h.serve
}

func (h *squareWebhook) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc == nil || h.verifier == nil || h.guard == nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square webhook not wired"))
		return
	}

	event, err := h.readEvent(r)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	eventID := event.ID()
	if h.logg != nil {
		ctx = h.logg.WithFields(ctx, map[string]any{"event_id": eventID, "event_type": event.Type})
	}

	seen, err := h.guard.CheckAndMark(ctx, eventID)
	if err != nil {
		responses.WriteError(ctx, h.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	if seen {
		h.debug(ctx, "square event already processed")
		responses.WriteSuccess(w, nil)
		return
	}

	if err := h.svc.HandleEvent(ctx, event); err != nil {
		if relErr := h.guard.Delete(context.WithoutCancel(ctx), eventID); relErr != nil && h.logg != nil {
			h.logg.Error(ctx, "release webhook idempotency key", relErr)
		}
		responses.WriteError(ctx, h.logg, w, err)
		return
	}
	if h.logg != nil {
		h.logg.Info(ctx, "square event processed")
	}
	responses.WriteSuccess(w, nil)
}

// readEvent authenticates and decodes the delivery. Signature failures are
// reported before the body is parsed.
func (h *squareWebhook) readEvent(r *http.Request) (*squarewebhook.SquareWebhookEvent, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if len(payload) > maxWebhookBody {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large")
	}

	header := strings.TrimSpace(r.Header.Get(square.SignatureHeader))
	switch {
	case header == "":
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
	case !h.verifier.VerifyWebhook(payload, header):
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}

	var event squarewebhook.SquareWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event")
	}
	if event.ID() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id missing")
	}
	return &event, nil
}

func (h *squareWebhook) debug(ctx context.Context, msg string) {
	if h.logg != nil {
		h.logg.Debug(ctx, msg)
	}
}
