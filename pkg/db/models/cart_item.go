package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartItem is the product snapshot taken when the item was added.
type CartItem struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CartID     uuid.UUID        `gorm:"column:cart_id;type:uuid;not null"`
	ProductID  uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	Product    *Product         `gorm:"foreignKey:ProductID"`
	Name       string           `gorm:"column:name;not null"`
	Price      decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	OfferPrice *decimal.Decimal `gorm:"column:offer_price;type:numeric(12,2)"`
	UnitPrice  *decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2)"`
	Quantity   int              `gorm:"column:quantity;not null"`
	UnitType   string           `gorm:"column:unit_type;not null;default:'kg'"`
	Category   string           `gorm:"column:category"`
	Weight     decimal.Decimal  `gorm:"column:weight;type:numeric(12,3);not null;default:0"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// EffectivePrice picks the offer price, then the unit price, then the base price.
func (i CartItem) EffectivePrice() decimal.Decimal {
	if i.OfferPrice != nil && i.OfferPrice.IsPositive() {
		return *i.OfferPrice
	}
	if i.UnitPrice != nil && i.UnitPrice.IsPositive() {
		return *i.UnitPrice
	}
	return i.Price
}

// LineTotal is the effective price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.EffectivePrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// VendorID resolves ownership through the referenced product.
func (i CartItem) VendorID() uuid.UUID {
	if i.Product == nil {
		return uuid.Nil
	}
	return i.Product.VendorID
}
