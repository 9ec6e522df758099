package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required for checkout.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUID(ctx context.Context, uid string) (*models.Cart, error)
	Delete(ctx context.Context, cartID uuid.UUID) error
}
