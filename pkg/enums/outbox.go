package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateUser               OutboxAggregateType = "user"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregateItemPurchase       OutboxAggregateType = "item_purchase"
)

// OutboxEventType names a domain event stored in outbox_events. The value
// doubles as the Pub/Sub event_type attribute.
type OutboxEventType string

const (
	EventSubscriptionActivated OutboxEventType = "subscription.activated"
	EventSubscriptionExpired   OutboxEventType = "subscription.expired"
	EventPurchaseCompleted     OutboxEventType = "purchase.completed"
	EventPurchaseRefunded      OutboxEventType = "purchase.refunded"
	EventPaymentFailed         OutboxEventType = "payment.failed"
)

var (
	aggregateTypes = []OutboxAggregateType{AggregateUser, AggregatePaymentTransaction, AggregateItemPurchase}
	eventTypes     = []OutboxEventType{
		EventSubscriptionActivated,
		EventSubscriptionExpired,
		EventPurchaseCompleted,
		EventPurchaseRefunded,
		EventPaymentFailed,
	}
)

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseKnown("aggregate type", value, aggregateTypes)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseKnown("event type", value, eventTypes)
}

// OutboxEventTypes lists every event type the outbox accepts.
func OutboxEventTypes() []OutboxEventType { return slices.Clone(eventTypes) }

func parseKnown[T ~string](kind, value string, known []T) (T, error) {
	if v := T(value); slices.Contains(known, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}

// OutboxDLQErrorReason records why the relay gave up on a row.
type OutboxDLQErrorReason string

const (
	// Publishing kept failing until the attempt budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// The row can never publish: unknown type or corrupt payload.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
