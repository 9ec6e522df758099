package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const (
	DefaultCity          = "Dhaka"
	DefaultState         = "Dhaka"
	DefaultPostcode      = "1000"
	DefaultCountry       = "Bangladesh"
	DefaultCustomerName  = "Customer"
	DefaultCustomerEmail = "customer@agromarket.com.bd"
)

// Customer is the buyer snapshot sent to the gateway and stored on payments.
type Customer struct {
	Name     string
	Email    string
	Phone    string
	Address1 string
	Address2 string
	City     string
	State    string
	Postcode string
	Country  string
}

// CustomerFromAddress builds the snapshot from a delivery address. email is
// used when the address carries none.
func CustomerFromAddress(addr types.DeliveryAddress, email string) Customer {
	pick := func(values ...string) string {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	return Customer{
		Name:     pick(addr.Name, DefaultCustomerName),
		Email:    pick(addr.Email, email, DefaultCustomerEmail),
		Phone:    pick(addr.Phone),
		Address1: pick(addr.AddressLine1, addr.City, DefaultCity),
		Address2: pick(addr.AddressLine2),
		City:     pick(addr.City, DefaultCity),
		State:    addr.StateOr(DefaultState),
		Postcode: addr.ZipOr(DefaultPostcode),
		Country:  DefaultCountry,
	}
}

// RecordFactory creates the PENDING payment row for each order before the
// gateway session exists.
type RecordFactory struct {
	repo     Repository
	ids      *TransactionIDFactory
	currency string
	now      func() time.Time
}

func NewRecordFactory(repo Repository, ids *TransactionIDFactory, currency string) (*RecordFactory, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ids == nil {
		ids = NewTransactionIDFactory()
	}
	if strings.TrimSpace(currency) == "" {
		currency = "BDT"
	}
	return &RecordFactory{repo: repo, ids: ids, currency: currency, now: time.Now}, nil
}

// Create inserts a payment for order. A tran_id collision regenerates the id
// once; a second collision is a CONFLICT.
func (f *RecordFactory) Create(ctx context.Context, tx *gorm.DB, order *models.Order, customer Customer) (*models.Payment, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if order == nil {
		return nil, errors.New("order required")
	}

	payment := &models.Payment{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		UID:              order.UID,
		Amount:           order.Total,
		Currency:         f.currency,
		CustomerName:     customer.Name,
		CustomerEmail:    customer.Email,
		CustomerPhone:    customer.Phone,
		CustomerAddress1: customer.Address1,
		CustomerAddress2: customer.Address2,
		CustomerCity:     customer.City,
		CustomerState:    customer.State,
		CustomerPostcode: customer.Postcode,
		CustomerCountry:  customer.Country,
		Status:           enums.PaymentStatusPending,
		InitiatedAt:      f.now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tranID, err := f.ids.New(order.OrderNumber)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate transaction id")
		}
		payment.TranID = tranID
		payment.ID = uuid.Nil

		lastErr = tx.Transaction(func(sp *gorm.DB) error {
			return f.repo.WithTx(sp).Create(ctx, payment)
		})
		if lastErr == nil {
			return payment, nil
		}
		if !db.IsUniqueViolation(lastErr, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "create payment")
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "Duplicate transaction id").
		WithDetails(map[string]any{"orderNumber": order.OrderNumber})
}
