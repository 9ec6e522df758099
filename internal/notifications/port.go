package notifications

import (
	"context"
	"time"
)

// Event types delivered to buyers and vendors.
const (
	TypePaymentSettled  = "payment.settled"
	TypePaymentFailed   = "payment.failed"
	TypePaymentCanceled = "payment.canceled"
)

// Event is one real-time message for a recipient.
type Event struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Port delivers events to connected recipients. Delivery is best effort:
// recipients that are not connected simply miss the event.
type Port interface {
	Send(ctx context.Context, recipientID string, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Send(context.Context, string, Event) error { return nil }
