package cart

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/repo"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
)

// Repository exposes persistence operations for buyer carts.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindByUID loads the buyer's cart with items and their products, in the
// order the items were added.
func (r *Repository) FindByUID(ctx context.Context, uid string) (*models.Cart, error) {
	var cart models.Cart
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Product").
		Where("uid = ?", strings.TrimSpace(uid)).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Delete removes the cart and every item in it.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	db := r.DB(ctx)
	if err := db.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", cartID).Delete(&models.Cart{}).Error
}
