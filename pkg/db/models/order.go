package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

// Order is the per-vendor order produced from one checkout event.
type Order struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UID                 string                   `gorm:"column:uid;not null;index"`
	BuyerRole           enums.BuyerRole          `gorm:"column:buyer_role;type:text;not null"`
	VendorID            uuid.UUID                `gorm:"column:vendor_id;type:uuid;not null"`
	CartID              uuid.UUID                `gorm:"column:cart_id;type:uuid;not null"`
	OrderNumber         string                   `gorm:"column:order_number;not null;uniqueIndex"`
	Subtotal            decimal.Decimal          `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                 decimal.Decimal          `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	ShippingFee         decimal.Decimal          `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	DeliveryFee         decimal.Decimal          `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	Discount            decimal.Decimal          `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total               decimal.Decimal          `gorm:"column:total;type:numeric(12,2);not null"`
	TotalWeight         decimal.Decimal          `gorm:"column:total_weight;type:numeric(12,3);not null;default:0"`
	DeliveryMethod      enums.DeliveryMethod     `gorm:"column:delivery_method;type:text;not null"`
	DeliveryAddress     types.DeliveryAddress    `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	PaymentMethod       enums.PaymentMethod      `gorm:"column:payment_method;type:text;not null"`
	Status              enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus       enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	IsPaid              bool                     `gorm:"column:is_paid;not null;default:false"`
	PaymentID           *string                  `gorm:"column:payment_id"`
	Notes               *string                  `gorm:"column:notes"`
	SpecialInstructions *string                  `gorm:"column:special_instructions"`
	StatusHistory       types.StatusHistory      `gorm:"column:status_history;type:jsonb"`
	StockRestoredAt     *time.Time               `gorm:"column:stock_restored_at"`
	ConfirmedAt         *time.Time               `gorm:"column:confirmed_at"`
	CancelledAt         *time.Time               `gorm:"column:cancelled_at"`
	Items               []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
