// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads before publish.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/db/models"
	"github.com/tillpoint/epos-backend/pkg/enums"
	"github.com/tillpoint/epos-backend/pkg/outbox"
	"github.com/tillpoint/epos-backend/pkg/outbox/payloads"
)

// EventDescriptor is the route for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry routes order events to the orders topic and product events
// to the products topic, falling back to the orders topic when unset.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	orders := strings.TrimSpace(cfg.OrdersTopic)
	if orders == "" {
		return nil, errors.New("orders topic is required")
	}
	products := strings.TrimSpace(cfg.ProductsTopic)
	if products == "" {
		products = orders
	}

	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.add(route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, orders))
	reg.add(route[payloads.OrderSettledEvent](enums.EventOrderSettled, enums.AggregateOrder, orders))
	reg.add(route[payloads.OrderRefundedEvent](enums.EventOrderRefunded, enums.AggregateOrder, orders))
	reg.add(route[payloads.OrderCanceledEvent](enums.EventOrderCanceled, enums.AggregateOrder, orders))
	reg.add(route[payloads.PriceChangedEvent](enums.EventPriceChanged, enums.AggregateProduct, products))
	return reg, nil
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage) (any, error) {
			out := new(T)
			if err := json.Unmarshal(data, out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

func (r *EventRegistry) add(desc EventDescriptor) {
	r.routes[desc.EventType] = desc
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case strings.TrimSpace(event.AggregateID) == "":
		return nil, nonRetryable("missing aggregate_id")
	}

	envelope, err := outbox.Open(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
