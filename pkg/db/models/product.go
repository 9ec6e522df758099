package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product holds the stock counter the ledger reserves against. Catalog data
// lives elsewhere; only ownership and availability are kept here.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	VendorID    uuid.UUID `gorm:"column:vendor_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	Stock       int       `gorm:"column:stock;not null;default:0"`
	MinOrderQty int       `gorm:"column:min_order_qty;not null;default:1"`
	UnitType    string    `gorm:"column:unit_type;not null;default:'kg'"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
