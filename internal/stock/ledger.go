package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/repo"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
)

// Reserver takes stock for one product inside the caller's transaction.
type Reserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Restorer gives back everything an order reserved, at most once.
type Restorer interface {
	RestoreOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
}

// Ledger keeps product stock consistent with order creation and cancellation.
// Every method runs against the transaction it is handed.
type Ledger struct {
	now func() time.Time
}

// NewLedger returns a ledger using the wall clock.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Reserve decrements stock atomically. When the counter cannot cover qty no
// row matches and the call fails with INSUFFICIENT_STOCK.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"productId": productID.String(), "quantity": qty})
	}

	n, err := repo.Affected(tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty)))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
	}
	if n == 0 {
		return l.insufficient(ctx, tx, productID, qty)
	}
	return nil
}

func (l *Ledger) insufficient(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	details := map[string]any{"productId": productID.String(), "requested": qty}
	var product models.Product
	err := tx.WithContext(ctx).Select("id", "name", "stock").First(&product, "id = ?", productID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "Product is no longer available").WithDetails(details)
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product stock")
	}
	details["available"] = product.Stock
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "Insufficient stock for "+product.Name).WithDetails(details)
}

// RestoreOrder re-increments the stock of every line item of orderID. The
// order's stock_restored_at stamp is claimed first so a second call, from any
// process, reports restored=false and changes nothing.
func (l *Ledger) RestoreOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	db := tx.WithContext(ctx)

	claimed, err := repo.Affected(db.Model(&models.Order{}).
		Where("id = ? AND stock_restored_at IS NULL", orderID).
		Update("stock_restored_at", l.now().UTC()))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stock restore")
	}
	if claimed == 0 {
		return false, nil
	}

	var items []models.OrderItem
	if err := db.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		err := db.Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			Update("stock", gorm.Expr("stock + ?", item.Quantity)).Error
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	return true, nil
}
