package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

// Cart is the single active cart owned by a buyer uid.
type Cart struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UID             string                 `gorm:"column:uid;not null;uniqueIndex"`
	Role            enums.BuyerRole        `gorm:"column:role;type:text;not null;default:'client'"`
	DeliveryMethod  *enums.DeliveryMethod  `gorm:"column:delivery_method;type:text"`
	DeliveryFee     decimal.Decimal        `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	DeliveryAddress *types.DeliveryAddress `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	Subtotal        decimal.Decimal        `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	Tax             decimal.Decimal        `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	ShippingFee     decimal.Decimal        `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	Discount        decimal.Decimal        `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total           decimal.Decimal        `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	Items           []CartItem             `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// ComputedTotal applies subtotal + tax + shippingFee + deliveryFee - discount.
func (c *Cart) ComputedTotal() decimal.Decimal {
	return c.Subtotal.Add(c.Tax).Add(c.ShippingFee).Add(c.DeliveryFee).Sub(c.Discount)
}
