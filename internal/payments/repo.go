package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/repo"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

// Repository defines persistence operations for payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByTranID(ctx context.Context, tranID string) (*models.Payment, error)
	FindCheckoutSiblings(ctx context.Context, primary *models.Payment, numbers []string) ([]models.Payment, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	SetSessionKey(ctx context.Context, ids []uuid.UUID, sessionKey string, response types.Fields) error
	MarkValid(ctx context.Context, id uuid.UUID, s Settlement) (bool, error)
	MarkClosed(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, payload types.Fields, at time.Time) (bool, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}

// Settlement carries the gateway data copied onto a payment when it turns VALID.
type Settlement struct {
	ValID             string
	BankTranID        string
	CardType          string
	CardNo            string
	CardIssuer        string
	CardBrand         string
	CardIssuerCountry string
	RiskLevel         string
	RiskTitle         string
	TranDate          string
	Payload           types.Fields
	Validation        types.Fields
	CompletedAt       time.Time
}

// SettlementFromFields maps gateway callback or validation fields.
func SettlementFromFields(fields types.Fields, at time.Time) Settlement {
	return Settlement{
		ValID:             fields.Get("val_id"),
		BankTranID:        fields.Get("bank_tran_id"),
		CardType:          fields.Get("card_type"),
		CardNo:            fields.Get("card_no"),
		CardIssuer:        fields.Get("card_issuer"),
		CardBrand:         fields.Get("card_brand"),
		CardIssuerCountry: fields.Get("card_issuer_country"),
		RiskLevel:         fields.Get("risk_level"),
		RiskTitle:         fields.Get("risk_title"),
		TranDate:          fields.Get("tran_date"),
		Payload:           fields,
		CompletedAt:       at,
	}
}

func (s Settlement) updates() map[string]any {
	out := map[string]any{
		"status":       enums.PaymentStatusValid,
		"completed_at": s.CompletedAt,
	}
	optional := map[string]string{
		"val_id":              s.ValID,
		"bank_tran_id":        s.BankTranID,
		"card_type":           s.CardType,
		"card_no":             s.CardNo,
		"card_issuer":         s.CardIssuer,
		"card_brand":          s.CardBrand,
		"card_issuer_country": s.CardIssuerCountry,
		"risk_level":          s.RiskLevel,
		"risk_title":          s.RiskTitle,
		"tran_date":           s.TranDate,
	}
	for column, value := range optional {
		if value != "" {
			out[column] = value
		}
	}
	if s.Payload != nil {
		out["gateway_response"] = s.Payload
	}
	if s.Validation != nil {
		out["validation_data"] = s.Validation
	}
	return out
}

type repository struct {
	repo.Base
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Omit("Order").Create(payment).Error
}

func (r *repository) FindByTranID(ctx context.Context, tranID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).Preload("Order.Items").Where("tran_id = ?", tranID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindCheckoutSiblings loads the payments listed in numbers that were created
// by the same checkout as primary: same buyer, and the same gateway session
// once one was opened, else the same cart. Numbers outside that set are dropped.
func (r *repository) FindCheckoutSiblings(ctx context.Context, primary *models.Payment, numbers []string) ([]models.Payment, error) {
	if primary == nil || len(numbers) == 0 {
		return nil, nil
	}
	q := r.DB(ctx).Preload("Order.Items").
		Where("order_number IN ? AND uid = ? AND id <> ?", numbers, primary.UID, primary.ID)
	switch {
	case primary.SessionKey != nil && *primary.SessionKey != "":
		q = q.Where("session_key = ?", *primary.SessionKey)
	case primary.Order != nil:
		q = q.Where("order_id IN (?)", r.DB(ctx).Model(&models.Order{}).Select("id").Where("cart_id = ?", primary.Order.CartID))
	default:
		return nil, nil
	}
	var out []models.Payment
	err := q.Order("created_at ASC").Find(&out).Error
	return out, err
}

// FindStalePending lists PENDING payments initiated before cutoff, oldest first.
func (r *repository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	q := r.DB(ctx).Preload("Order.Items").
		Where("status = ? AND initiated_at < ?", enums.PaymentStatusPending, cutoff).
		Order("initiated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Payment
	return out, q.Find(&out).Error
}

func (r *repository) SetSessionKey(ctx context.Context, ids []uuid.UUID, sessionKey string, response types.Fields) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.Payment{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"session_key": sessionKey, "gateway_response": response}).Error
}

// MarkValid settles a PENDING payment. It reports false when the payment had
// already left PENDING.
func (r *repository) MarkValid(ctx context.Context, id uuid.UUID, s Settlement) (bool, error) {
	return repo.Changed(r.DB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(s.updates()))
}

// MarkClosed moves a PENDING payment to a terminal non-VALID status.
func (r *repository) MarkClosed(ctx context.Context, id uuid.UUID, status enums.PaymentStatus, payload types.Fields, at time.Time) (bool, error) {
	updates := map[string]any{"status": status, "completed_at": at}
	if payload != nil {
		updates["gateway_response"] = payload
	}
	return repo.Changed(r.DB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates))
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB(ctx).Where("id IN ?", ids).Delete(&models.Payment{}).Error
}
