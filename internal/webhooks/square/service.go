package squarewebhook

import (
	"context"
	"strings"

	"github.com/tillpoint/epos-backend/internal/settlement"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

const (
	EventPaymentCreated = "payment.created"
	EventPaymentUpdated = "payment.updated"
)

type settler interface {
	OnPaymentNotification(ctx context.Context, n settlement.Notification) (settlement.Outcome, error)
}

type Service struct {
	settlement settler
	logg       *logger.Logger
}

func NewService(settle settler, logg *logger.Logger) (*Service, error) {
	if settle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement handler required")
	}
	return &Service{settlement: settle, logg: logg}, nil
}

type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

// ID is the delivery's dedupe key: the event id, or the object id for
// payloads that omit it.
func (e *SquareWebhookEvent) ID() string {
	if id := strings.TrimSpace(e.EventID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Data.ID)
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of the Square payment object settlement reads.
type SquarePayment struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// HandleEvent routes payment events to settlement; other types are acknowledged.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case EventPaymentCreated, EventPaymentUpdated:
		payment := event.Data.Object.Payment
		if payment == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		outcome, err := s.settlement.OnPaymentNotification(ctx, settlement.Notification{
			GatewayOrderID: payment.OrderID,
			Status:         payment.Status,
			PaymentID:      payment.ID,
		})
		if err != nil {
			return err
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event_id":   event.EventID,
				"event_type": event.Type,
				"outcome":    string(outcome),
			})
			s.logg.Debug(logCtx, "payment event handled")
		}
		return nil
	default:
		return nil
	}
}
