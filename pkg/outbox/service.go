package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

// DomainEvent is what services hand to Emit inside their transaction.
// AggregateType may be left blank; it is implied by EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter is the surface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores the event in the caller's transaction so it commits or rolls
// back with the state change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	row, eventID, err := s.build(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       eventID,
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID,
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) build(event DomainEvent) (models.OutboxEvent, string, error) {
	implied := event.EventType.Aggregate()
	switch {
	case implied == "":
		return models.OutboxEvent{}, "", fmt.Errorf("unknown outbox event type %q", event.EventType)
	case event.AggregateType == "":
		event.AggregateType = implied
	case event.AggregateType != implied:
		return models.OutboxEvent{}, "", fmt.Errorf("event %s belongs to %s aggregates, not %s", event.EventType, implied, event.AggregateType)
	}
	if event.AggregateID == "" {
		return models.OutboxEvent{}, "", errors.New("aggregate id required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	envelope, payload, err := Seal(event.Version, event.OccurredAt, event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}
