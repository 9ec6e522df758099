package helpers

import (
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VendorProjection is the slice of a cart that becomes one vendor order.
type VendorProjection struct {
	VendorID        uuid.UUID
	Items           []models.CartItem
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	ShippingFee     decimal.Decimal
	DeliveryFee     decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	TotalWeight     decimal.Decimal
	DeliveryMethod  enums.DeliveryMethod
	DeliveryAddress types.DeliveryAddress
}

// GroupCartItemsByVendor groups items by the vendor that owns each product,
// preserving the order in which vendors first appear in the cart.
func GroupCartItemsByVendor(items []models.CartItem) ([]uuid.UUID, map[uuid.UUID][]models.CartItem) {
	order := make([]uuid.UUID, 0, len(items))
	grouped := make(map[uuid.UUID][]models.CartItem, len(items))
	for _, item := range items {
		vendor := item.VendorID()
		if _, seen := grouped[vendor]; !seen {
			order = append(order, vendor)
		}
		grouped[vendor] = append(grouped[vendor], item)
	}
	return order, grouped
}

// SplitByVendor validates the cart and projects it into one slice per vendor.
// The first vendor group carries the whole cart-level delivery fee, tax,
// shipping fee and discount so the projection totals add up to the cart total.
func SplitByVendor(cart *models.Cart) ([]VendorProjection, error) {
	if err := ValidateCart(cart); err != nil {
		return nil, err
	}

	vendors, grouped := GroupCartItemsByVendor(cart.Items)
	projections := make([]VendorProjection, 0, len(vendors))
	for i, vendor := range vendors {
		p := VendorProjection{
			VendorID:        vendor,
			Items:           grouped[vendor],
			DeliveryMethod:  *cart.DeliveryMethod,
			DeliveryAddress: *cart.DeliveryAddress,
			Tax:             decimal.Zero,
			ShippingFee:     decimal.Zero,
			DeliveryFee:     decimal.Zero,
			Discount:        decimal.Zero,
		}
		p.Subtotal, p.TotalWeight = ComputeVendorTotals(p.Items)
		if i == 0 {
			p.Tax = cart.Tax
			p.ShippingFee = cart.ShippingFee
			p.DeliveryFee = cart.DeliveryFee
			p.Discount = cart.Discount
		}
		p.Total = p.Subtotal.Add(p.Tax).Add(p.ShippingFee).Add(p.DeliveryFee).Sub(p.Discount)
		if p.Total.IsNegative() {
			p.Total = decimal.Zero
		}
		projections = append(projections, p)
	}
	return projections, nil
}

// ComputeVendorTotals returns the item subtotal and total shipped weight.
func ComputeVendorTotals(items []models.CartItem) (decimal.Decimal, decimal.Decimal) {
	subtotal := decimal.Zero
	weight := decimal.Zero
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.EffectivePrice().Mul(qty))
		weight = weight.Add(item.Weight.Mul(qty))
	}
	return subtotal, weight
}

// SumTotals adds up the projection totals.
func SumTotals(projections []VendorProjection) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range projections {
		sum = sum.Add(p.Total)
	}
	return sum
}
