package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumbers(ctx context.Context, numbers []string) ([]models.Order, error)
	MarkPaid(ctx context.Context, order *models.Order, paymentID string, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, order *models.Order, paymentFailed bool, note string, at time.Time) (bool, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}
