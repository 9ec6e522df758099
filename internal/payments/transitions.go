package payments

import "github.com/angelmondragon/agromarket-backend/pkg/enums"

// Event is a gateway or scheduler outcome applied to a payment.
type Event string

const (
	EventValidated Event = "validated"
	EventFailed    Event = "failed"
	EventCancelled Event = "cancelled"
	EventExpired   Event = "expired"
)

// Effect is a side effect the reconciler must perform after a transition.
type Effect string

const (
	EffectMarkOrdersPaid   Effect = "mark_orders_paid"
	EffectMarkOrdersFailed Effect = "mark_orders_failed"
	EffectCancelOrders     Effect = "cancel_orders"
	EffectRestoreStock     Effect = "restore_stock"
	EffectNotify           Effect = "notify"
)

// Transition is the result of applying an event to a payment status.
type Transition struct {
	From    enums.PaymentStatus
	To      enums.PaymentStatus
	Effects []Effect
}

// Changed reports whether the event moved the payment.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Has reports whether the transition carries effect.
func (t Transition) Has(effect Effect) bool {
	for _, e := range t.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

// Next applies event to current. Only PENDING payments move; every other
// status absorbs all events so a settled payment never goes back.
func Next(current enums.PaymentStatus, event Event) Transition {
	stay := Transition{From: current, To: current}
	if current != enums.PaymentStatusPending {
		return stay
	}
	switch event {
	case EventValidated:
		return Transition{From: current, To: enums.PaymentStatusValid,
			Effects: []Effect{EffectMarkOrdersPaid, EffectNotify}}
	case EventFailed:
		return Transition{From: current, To: enums.PaymentStatusFailed,
			Effects: []Effect{EffectMarkOrdersFailed, EffectRestoreStock, EffectNotify}}
	case EventCancelled:
		return Transition{From: current, To: enums.PaymentStatusCancelled,
			Effects: []Effect{EffectMarkOrdersFailed, EffectRestoreStock, EffectNotify}}
	case EventExpired:
		return Transition{From: current, To: enums.PaymentStatusUnattempted,
			Effects: []Effect{EffectCancelOrders, EffectRestoreStock}}
	default:
		return stay
	}
}
