package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateProduct OutboxAggregateType = "product"
)

func (a OutboxAggregateType) String() string { return string(a) }

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateProduct
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(value)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

// OutboxEventType is the routing key consumers subscribe on.
type OutboxEventType string

const (
	EventOrderCreated  OutboxEventType = "order.created"
	EventOrderSettled  OutboxEventType = "order.settled"
	EventOrderRefunded OutboxEventType = "order.refunded"
	EventOrderCanceled OutboxEventType = "order.canceled"
	EventPriceChanged  OutboxEventType = "product.price_changed"
)

// eventAggregates pins every event type to the aggregate it is keyed by.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:  AggregateOrder,
	EventOrderSettled:  AggregateOrder,
	EventOrderRefunded: AggregateOrder,
	EventOrderCanceled: AggregateOrder,
	EventPriceChanged:  AggregateProduct,
}

func (e OutboxEventType) String() string { return string(e) }

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is the aggregate type the event belongs to, or "" when unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid outbox event type %q", value)
	}
	return e, nil
}
