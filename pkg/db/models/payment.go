package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

// Payment is the gateway-facing record for one order. TranID drives every
// callback lookup.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TranID            string              `gorm:"column:tran_id;not null;uniqueIndex"`
	ValID             *string             `gorm:"column:val_id"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Order             *Order              `gorm:"foreignKey:OrderID"`
	OrderNumber       string              `gorm:"column:order_number;not null"`
	UID               string              `gorm:"column:uid;not null;index"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string              `gorm:"column:currency;not null;default:'BDT'"`
	CustomerName      string              `gorm:"column:cus_name;not null"`
	CustomerEmail     string              `gorm:"column:cus_email;not null"`
	CustomerPhone     string              `gorm:"column:cus_phone;not null"`
	CustomerAddress1  string              `gorm:"column:cus_add1;not null"`
	CustomerAddress2  string              `gorm:"column:cus_add2"`
	CustomerCity      string              `gorm:"column:cus_city;not null"`
	CustomerState     string              `gorm:"column:cus_state"`
	CustomerPostcode  string              `gorm:"column:cus_postcode"`
	CustomerCountry   string              `gorm:"column:cus_country;not null;default:'Bangladesh'"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	SessionKey        *string             `gorm:"column:session_key"`
	BankTranID        *string             `gorm:"column:bank_tran_id"`
	CardType          *string             `gorm:"column:card_type"`
	CardNo            *string             `gorm:"column:card_no"`
	CardIssuer        *string             `gorm:"column:card_issuer"`
	CardBrand         *string             `gorm:"column:card_brand"`
	CardIssuerCountry *string             `gorm:"column:card_issuer_country"`
	RiskLevel         *string             `gorm:"column:risk_level"`
	RiskTitle         *string             `gorm:"column:risk_title"`
	TranDate          *string             `gorm:"column:tran_date"`
	GatewayResponse   types.Fields        `gorm:"column:gateway_response;type:jsonb"`
	ValidationData    types.Fields        `gorm:"column:validation_data;type:jsonb"`
	InitiatedAt       time.Time           `gorm:"column:initiated_at;not null"`
	CompletedAt       *time.Time          `gorm:"column:completed_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
