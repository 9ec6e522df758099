package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/agromarket-backend/pkg/enums"
)

// CheckoutInitiatedEvent records a cart split into vendor orders with a live
// gateway session.
type CheckoutInitiatedEvent struct {
	CartID       uuid.UUID       `json:"cart_id"`
	UID          string          `json:"uid"`
	OrderIDs     []uuid.UUID     `json:"order_ids"`
	OrderNumbers []string        `json:"order_numbers"`
	TranIDs      []string        `json:"tran_ids"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// CheckoutRolledBackEvent reports a failed gateway session init and the
// compensation that followed.
type CheckoutRolledBackEvent struct {
	CartID       uuid.UUID `json:"cart_id"`
	UID          string    `json:"uid"`
	OrderNumbers []string  `json:"order_numbers"`
	Reason       string    `json:"reason"`
}

// PaymentSettledEvent is emitted once per order when its payment turns VALID.
type PaymentSettledEvent struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	TranID      string          `json:"tran_id"`
	ValID       string          `json:"val_id,omitempty"`
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	UID         string          `json:"uid"`
	Amount      decimal.Decimal `json:"amount"`
	Channel     string          `json:"channel"`
	SettledAt   time.Time       `json:"settled_at"`
}

// PaymentClosedEvent covers failed and cancelled payments.
type PaymentClosedEvent struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	TranID      string              `json:"tran_id"`
	OrderID     uuid.UUID           `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	UID         string              `json:"uid"`
	Status      enums.PaymentStatus `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	Channel     string              `json:"channel"`
	ClosedAt    time.Time           `json:"closed_at"`
}

// OrderExpiredEvent reports an order whose payment was abandoned.
type OrderExpiredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	TranID      string    `json:"tran_id"`
	UID         string    `json:"uid"`
	ExpiredAt   time.Time `json:"expired_at"`
}
