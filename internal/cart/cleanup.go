package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
)

// Cleanup empties a buyer's cart once a payment session exists for it.
type Cleanup struct {
	repo CartRepository
}

func NewCleanup(repo CartRepository) (*Cleanup, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &Cleanup{repo: repo}, nil
}

// Clear deletes the cart items and the cart. tx may be nil to use the bound
// connection.
func (c *Cleanup) Clear(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	if cartID == uuid.Nil {
		return nil
	}
	if err := c.repo.WithTx(tx).Delete(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}
