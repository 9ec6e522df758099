package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregatePayment  OutboxAggregateType = "payment"
	AggregateCheckout OutboxAggregateType = "checkout"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateCheckout,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event persisted through the outbox.
type OutboxEventType string

const (
	EventCheckoutInitiated  OutboxEventType = "checkout_initiated"
	EventCheckoutRolledBack OutboxEventType = "checkout_rolled_back"
	EventPaymentSettled     OutboxEventType = "payment_settled"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventPaymentCanceled    OutboxEventType = "payment_canceled"
	EventOrderExpired       OutboxEventType = "order_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCheckoutInitiated,
	EventCheckoutRolledBack,
	EventPaymentSettled,
	EventPaymentFailed,
	EventPaymentCanceled,
	EventOrderExpired,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
