package helpers

import (
	"testing"

	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func item(vendor uuid.UUID, name string, qty int, price string) models.CartItem {
	return models.CartItem{
		ID:        uuid.New(),
		ProductID: uuid.New(),
		Product:   &models.Product{VendorID: vendor, MinOrderQty: 1},
		Name:      name,
		Price:     dec(price),
		Quantity:  qty,
		Weight:    dec("1.5"),
	}
}

func validCart(items ...models.CartItem) *models.Cart {
	method := enums.DeliveryMethodStandard
	return &models.Cart{
		ID:              uuid.New(),
		UID:             "uid-1",
		Role:            enums.BuyerRoleClient,
		DeliveryMethod:  &method,
		DeliveryAddress: &types.DeliveryAddress{AddressLine1: "House 7", City: "Dhaka", Phone: "01700000000"},
		Items:           items,
	}
}

func TestSplitByVendorMatchesWorkedExample(t *testing.T) {
	t.Parallel()
	vendorA, vendorB := uuid.New(), uuid.New()
	cart := validCart(
		item(vendorA, "Rice", 2, "100"),
		item(vendorB, "Lentils", 1, "50"),
	)
	cart.DeliveryFee = dec("70")

	projections, err := SplitByVendor(cart)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(projections) != 2 {
		t.Fatalf("expected 2 projections, got %d", len(projections))
	}
	if projections[0].VendorID != vendorA || !projections[0].Total.Equal(dec("270")) {
		t.Fatalf("vendor A should total 270, got %s for %s", projections[0].Total, projections[0].VendorID)
	}
	if projections[1].VendorID != vendorB || !projections[1].Total.Equal(dec("50")) {
		t.Fatalf("vendor B should total 50, got %s", projections[1].Total)
	}
	if !projections[1].DeliveryFee.IsZero() {
		t.Fatalf("only the first group carries the delivery fee")
	}
	if got := SumTotals(projections); !got.Equal(dec("320")) {
		t.Fatalf("expected 320 overall, got %s", got)
	}
}

func TestSplitByVendorTotalsEqualCartTotal(t *testing.T) {
	t.Parallel()
	vendorA, vendorB, vendorC := uuid.New(), uuid.New(), uuid.New()
	cart := validCart(
		item(vendorA, "Potato", 3, "40"),
		item(vendorB, "Onion", 5, "60"),
		item(vendorA, "Garlic", 1, "150"),
		item(vendorC, "Mango", 2, "220.50"),
	)
	cart.Subtotal = dec("1011")
	cart.Tax = dec("25")
	cart.ShippingFee = dec("10")
	cart.DeliveryFee = dec("120")
	cart.Discount = dec("30")

	projections, err := SplitByVendor(cart)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(projections) != 3 {
		t.Fatalf("expected 3 vendors, got %d", len(projections))
	}
	if len(projections[0].Items) != 2 {
		t.Fatalf("vendor A should keep both of its items")
	}
	if got, want := SumTotals(projections), cart.ComputedTotal(); !got.Equal(want) {
		t.Fatalf("projection totals %s must equal cart total %s", got, want)
	}
	if !projections[0].TotalWeight.Equal(dec("6")) {
		t.Fatalf("expected weight 6 for vendor A, got %s", projections[0].TotalWeight)
	}
}

func TestEffectivePricePrefersOfferThenUnit(t *testing.T) {
	t.Parallel()
	offer, unit := dec("80"), dec("90")
	it := item(uuid.New(), "Beans", 2, "100")
	it.UnitPrice = &unit
	if !it.EffectivePrice().Equal(unit) {
		t.Fatalf("expected unit price when no offer")
	}
	it.OfferPrice = &offer
	if !it.LineTotal().Equal(dec("160")) {
		t.Fatalf("expected offer price line total 160, got %s", it.LineTotal())
	}
}

func TestSplitByVendorPreconditions(t *testing.T) {
	t.Parallel()
	vendor := uuid.New()

	noAddress := validCart(item(vendor, "Rice", 1, "10"))
	noAddress.DeliveryAddress = nil

	noMethod := validCart(item(vendor, "Rice", 1, "10"))
	noMethod.DeliveryMethod = nil

	belowMin := validCart(item(vendor, "Rice", 1, "10"))
	belowMin.Items[0].Product.MinOrderQty = 5

	orphan := validCart(item(vendor, "Rice", 1, "10"))
	orphan.Items[0].Product = nil

	cases := map[string]*models.Cart{
		"empty":      validCart(),
		"nil":        nil,
		"no address": noAddress,
		"no method":  noMethod,
		"below min":  belowMin,
		"orphan":     orphan,
	}
	for name, cart := range cases {
		cart := cart
		t.Run(name, func(t *testing.T) {
			_, err := SplitByVendor(cart)
			if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
