package helpers

import (
	"fmt"

	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
)

// ValidateCart checks the cart preconditions that must hold before any order
// is created.
func ValidateCart(cart *models.Cart) error {
	if cart == nil || len(cart.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Cart is empty")
	}
	if cart.DeliveryAddress.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "Delivery address is required")
	}
	if cart.DeliveryMethod == nil || !cart.DeliveryMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "Delivery method is required")
	}
	for _, item := range cart.Items {
		if err := validateItem(item); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(item models.CartItem) error {
	if item.Product == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Product %s is no longer available", item.Name)).
			WithDetails(map[string]any{"productId": item.ProductID.String()})
	}
	if item.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Invalid quantity for %s", item.Name)).
			WithDetails(map[string]any{"productId": item.ProductID.String(), "quantity": item.Quantity})
	}
	if min := item.Product.MinOrderQty; min > 0 && item.Quantity < min {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Minimum order quantity for %s is %d", item.Name, min)).
			WithDetails(map[string]any{"productId": item.ProductID.String(), "minOrderQty": min})
	}
	if item.EffectivePrice().IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Invalid price for %s", item.Name))
	}
	return nil
}
