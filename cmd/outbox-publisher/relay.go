package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	"github.com/tillpoint/epos-backend/pkg/logger"
	"github.com/tillpoint/epos-backend/pkg/outbox/registry"
	"github.com/tillpoint/epos-backend/pkg/pubsub"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
	publishJob         = "outbox_publish"
)

type txPinger interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	DeadLetterTx(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sender delivers one message to a topic and blocks until the broker acks.
type sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type jobMetrics interface {
	ObserveDuration(job string, duration time.Duration)
	IncSuccess(job string)
	IncFailure(job string)
}

type RelayParams struct {
	Outbox   config.OutboxConfig
	Logger   *logger.Logger
	DB       txPinger
	Sender   sender
	Events   eventStore
	Registry resolver
	Metrics  jobMetrics
}

// Relay drains committed outbox rows to Pub/Sub. Events sharing an aggregate
// are published under one ordering key, so a retrying event holds back the
// aggregate's later events until the next pass.
type Relay struct {
	logg        *logger.Logger
	db          txPinger
	sender      sender
	events      eventStore
	registry    resolver
	metrics     jobMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

type passStats struct {
	published    int
	retried      int
	deadLettered int
	held         int
}

func (s passStats) total() int {
	return s.published + s.retried + s.deadLettered + s.held
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		sender:      p.Sender,
		events:      p.Events,
		registry:    p.Registry,
		metrics:     p.Metrics,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		poll:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

// Run polls until ctx is canceled. A full pass is followed immediately by the
// next one; an empty or failed pass waits, with failures backing off.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		r.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.sender.Ping(ctx); err != nil {
		r.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		started := time.Now()
		stats, err := r.drain(ctx)
		if stats.total() > 0 && r.metrics != nil {
			r.metrics.ObserveDuration(publishJob, time.Since(started))
		}

		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay pass failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case stats.total() >= r.batchSize && stats.held == 0:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}

		if err := pause(ctx, wait+jitter()); err != nil {
			return err
		}
	}
}

// drain handles one batch inside a single transaction so the row locks taken
// by the fetch are held until every row's outcome is recorded.
func (r *Relay) drain(ctx context.Context) (passStats, error) {
	var stats passStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = passStats{}
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}

		blocked := make(map[string]struct{})
		for _, row := range rows {
			key := orderingKey(row)
			if _, ok := blocked[key]; ok {
				stats.held++
				continue
			}

			result, err := r.relay(ctx, tx, row)
			if err != nil {
				return err
			}
			switch result {
			case outcomePublished:
				stats.published++
			case outcomeDeadLettered:
				stats.deadLettered++
			case outcomeRetry:
				stats.retried++
				blocked[key] = struct{}{}
			}
		}
		return nil
	})
	if err == nil && stats.total() > 0 {
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
			"published":     stats.published,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
			"held":          stats.held,
		}), "outbox relay pass complete")
	}
	return stats, err
}

func (r *Relay) relay(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	fields := rowFields(row)

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	msgID, err := r.sender.Send(sendCtx, resolved.Descriptor.Topic, buildMessage(row, resolved))
	cancel()

	if err == nil {
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return 0, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		fields["message_id"] = msgID
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		if r.metrics != nil {
			r.metrics.IncSuccess(publishJob)
		}
		return outcomePublished, nil
	}

	var terminal registry.NonRetryableError
	if errors.As(err, &terminal) || pubsub.IsPermanent(err) {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", err.Error()), "outbox publish failed, will retry")
	r.countFailure()
	if err := r.events.MarkFailedTx(tx, row.ID, err); err != nil {
		return 0, fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) (outcome, error) {
	fields["error_reason"] = reason
	r.logg.Warn(r.logg.WithField(r.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")
	r.countFailure()

	if err := r.events.DeadLetterTx(tx, row, reason, cause, r.maxAttempts); err != nil {
		return 0, fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	return outcomeDeadLettered, nil
}

func (r *Relay) countFailure() {
	if r.metrics != nil {
		r.metrics.IncFailure(publishJob)
	}
}

func orderingKey(row models.OutboxEvent) string {
	return string(row.AggregateType) + ":" + row.AggregateID
}

func buildMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: orderingKey(row),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID,
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"attempt_count":  row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}
