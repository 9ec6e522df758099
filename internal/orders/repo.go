package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/repo"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByNumbers returns the orders in the order the numbers were given.
// Unknown numbers are skipped.
func (r *repository) FindByNumbers(ctx context.Context, numbers []string) ([]models.Order, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var found []models.Order
	if err := r.DB(ctx).Preload("Items").Where("order_number IN ?", numbers).Find(&found).Error; err != nil {
		return nil, err
	}
	byNumber := make(map[string]models.Order, len(found))
	for _, o := range found {
		byNumber[o.OrderNumber] = o
	}
	out := make([]models.Order, 0, len(found))
	for _, n := range numbers {
		if o, ok := byNumber[n]; ok {
			out = append(out, o)
			delete(byNumber, n)
		}
	}
	return out, nil
}

// MarkPaid confirms a pending, unpaid order. It reports false when another
// callback already moved the order.
func (r *repository) MarkPaid(ctx context.Context, order *models.Order, paymentID string, at time.Time) (bool, error) {
	history := order.StatusHistory.Append(string(enums.OrderStatusConfirmed), "payment settled", at)
	n, err := repo.Affected(r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?", order.ID, enums.OrderStatusPending, enums.OrderPaymentUnpaid).
		Updates(map[string]any{
			"status":         enums.OrderStatusConfirmed,
			"payment_status": enums.OrderPaymentPaid,
			"is_paid":        true,
			"payment_id":     paymentID,
			"confirmed_at":   at,
			"status_history": history,
		}))
	if err != nil || n == 0 {
		return false, err
	}
	order.Status = enums.OrderStatusConfirmed
	order.PaymentStatus = enums.OrderPaymentPaid
	order.IsPaid = true
	order.PaymentID = &paymentID
	order.ConfirmedAt = &at
	order.StatusHistory = history
	return true, nil
}

// MarkCancelled cancels a pending order. paymentFailed selects whether the
// payment status becomes failed or stays unpaid.
func (r *repository) MarkCancelled(ctx context.Context, order *models.Order, paymentFailed bool, note string, at time.Time) (bool, error) {
	paymentStatus := enums.OrderPaymentUnpaid
	if paymentFailed {
		paymentStatus = enums.OrderPaymentFailed
	}
	history := order.StatusHistory.Append(string(enums.OrderStatusCancelled), note, at)
	n, err := repo.Affected(r.DB(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":         enums.OrderStatusCancelled,
			"payment_status": paymentStatus,
			"cancelled_at":   at,
			"status_history": history,
		}))
	if err != nil || n == 0 {
		return false, err
	}
	order.Status = enums.OrderStatusCancelled
	order.PaymentStatus = paymentStatus
	order.CancelledAt = &at
	order.StatusHistory = history
	return true, nil
}

// DeleteByIDs removes orders and their line items.
func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.DB(ctx)
	if err := db.Where("order_id IN ?", ids).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&models.Order{}).Error
}
