package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/checkout/helpers"
	"github.com/angelmondragon/agromarket-backend/internal/stock"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const maxNumberAttempts = 3

// CreateInput carries one vendor projection plus the buyer's checkout choices.
type CreateInput struct {
	Projection          helpers.VendorProjection
	UID                 string
	Role                enums.BuyerRole
	CartID              uuid.UUID
	PaymentMethod       enums.PaymentMethod
	Notes               *string
	SpecialInstructions *string
}

// Factory persists vendor orders and reserves their stock.
type Factory struct {
	repo    Repository
	ledger  stock.Reserver
	numbers *NumberGenerator
	now     func() time.Time
}

func NewFactory(repo Repository, ledger stock.Reserver, numbers *NumberGenerator) (*Factory, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if numbers == nil {
		numbers = NewNumberGenerator()
	}
	return &Factory{repo: repo, ledger: ledger, numbers: numbers, now: time.Now}, nil
}

// Create writes the order and its frozen line items and reserves stock for
// each item, all inside tx. Any reservation failure is returned as is so the
// caller's transaction rolls every write back.
func (f *Factory) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(input.Projection.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor group has no items")
	}

	order := f.build(input)
	if err := f.insert(ctx, tx, order, input.Role); err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		if err := f.ledger.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// insert retries with a fresh order number when the random suffix collides.
// Each attempt runs in a savepoint so a failed insert leaves tx usable.
func (f *Factory) insert(ctx context.Context, tx *gorm.DB, order *models.Order, role enums.BuyerRole) error {
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := f.numbers.Next(role)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number

		lastErr = tx.Transaction(func(sp *gorm.DB) error {
			return f.repo.WithTx(sp).Create(ctx, order)
		})
		if lastErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(lastErr, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "create order")
		}
		resetIDs(order)
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "order number collision")
}

func resetIDs(order *models.Order) {
	order.ID = uuid.Nil
	for i := range order.Items {
		order.Items[i].ID = uuid.Nil
		order.Items[i].OrderID = uuid.Nil
	}
}

func (f *Factory) build(input CreateInput) *models.Order {
	p := input.Projection
	now := f.now().UTC()

	items := make([]models.OrderItem, 0, len(p.Items))
	for _, ci := range p.Items {
		price := ci.EffectivePrice()
		items = append(items, models.OrderItem{
			ProductID: ci.ProductID,
			Name:      ci.Name,
			UnitPrice: price,
			Quantity:  ci.Quantity,
			UnitType:  unitType(ci),
			Category:  ci.Category,
			LineTotal: price.Mul(decimal.NewFromInt(int64(ci.Quantity))),
		})
	}

	role := input.Role
	if !role.IsValid() {
		role = enums.BuyerRoleClient
	}

	return &models.Order{
		UID:                 input.UID,
		BuyerRole:           role,
		VendorID:            p.VendorID,
		CartID:              input.CartID,
		Subtotal:            p.Subtotal,
		Tax:                 p.Tax,
		ShippingFee:         p.ShippingFee,
		DeliveryFee:         p.DeliveryFee,
		Discount:            p.Discount,
		Total:               p.Total,
		TotalWeight:         p.TotalWeight,
		DeliveryMethod:      p.DeliveryMethod,
		DeliveryAddress:     p.DeliveryAddress,
		PaymentMethod:       input.PaymentMethod,
		Status:              enums.OrderStatusPending,
		PaymentStatus:       enums.OrderPaymentUnpaid,
		Notes:               trimmed(input.Notes),
		SpecialInstructions: trimmed(input.SpecialInstructions),
		StatusHistory:       types.StatusHistory{}.Append(string(enums.OrderStatusPending), "order placed", now),
		Items:               items,
	}
}

func unitType(ci models.CartItem) string {
	if ci.UnitType != "" {
		return ci.UnitType
	}
	if ci.Product != nil && ci.Product.UnitType != "" {
		return ci.Product.UnitType
	}
	return "kg"
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
