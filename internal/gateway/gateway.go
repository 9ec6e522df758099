package gateway

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const (
	InitPath       = "/gwprocess/v4/api.php"
	ValidationPath = "/validator/api/validationserverAPI.php"

	StatusSuccess   = "SUCCESS"
	StatusValid     = "VALID"
	StatusValidated = "VALIDATED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// ErrUnavailable is returned when the breaker is open or the gateway cannot
// be reached.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Port is the hosted payment gateway as seen by checkout and reconciliation.
type Port interface {
	InitSession(ctx context.Context, req SessionRequest) (*Session, error)
	Validate(ctx context.Context, valID string) (*Validation, error)
}

// Party is the customer or shipping contact block of a session request.
type Party struct {
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

// SessionRequest is one payment session covering every order of a checkout.
type SessionRequest struct {
	TotalAmount     decimal.Decimal
	Currency        string
	TranID          string
	SuccessURL      string
	FailURL         string
	CancelURL       string
	IPNURL          string
	Customer        Party
	Shipping        Party
	NumOfItems      int
	ProductName     string
	ProductCategory string
	ProductProfile  string
	ValueA          string
	ValueB          string
	ValueC          string
	ValueD          string
}

// Form renders the request as gateway form fields, without credentials.
func (r SessionRequest) Form() url.Values {
	v := url.Values{}
	v.Set("total_amount", r.TotalAmount.StringFixed(2))
	v.Set("currency", r.Currency)
	v.Set("tran_id", r.TranID)
	v.Set("success_url", r.SuccessURL)
	v.Set("fail_url", r.FailURL)
	v.Set("cancel_url", r.CancelURL)
	v.Set("ipn_url", r.IPNURL)

	v.Set("cus_name", r.Customer.Name)
	v.Set("cus_email", r.Customer.Email)
	v.Set("cus_add1", r.Customer.Address1)
	v.Set("cus_add2", r.Customer.Address2)
	v.Set("cus_city", r.Customer.City)
	v.Set("cus_state", r.Customer.State)
	v.Set("cus_postcode", r.Customer.Postcode)
	v.Set("cus_country", r.Customer.Country)
	v.Set("cus_phone", r.Customer.Phone)

	v.Set("shipping_method", "YES")
	v.Set("ship_name", r.Shipping.Name)
	v.Set("ship_add1", r.Shipping.Address1)
	v.Set("ship_add2", r.Shipping.Address2)
	v.Set("ship_city", r.Shipping.City)
	v.Set("ship_state", r.Shipping.State)
	v.Set("ship_postcode", r.Shipping.Postcode)
	v.Set("ship_country", r.Shipping.Country)
	v.Set("num_of_item", strconv.Itoa(r.NumOfItems))

	v.Set("product_name", r.ProductName)
	v.Set("product_category", r.ProductCategory)
	v.Set("product_profile", r.ProductProfile)

	v.Set("value_a", r.ValueA)
	v.Set("value_b", r.ValueB)
	v.Set("value_c", r.ValueC)
	v.Set("value_d", r.ValueD)
	return v
}

// Session is the gateway's answer to a session request.
type Session struct {
	Status       string
	SessionKey   string
	GatewayURL   string
	RedirectURL  string
	FailedReason string
	Raw          types.Fields
}

// OK reports whether the session can be handed to the buyer.
func (s *Session) OK() bool {
	return s != nil && strings.EqualFold(s.Status, StatusSuccess) && s.GatewayURL != ""
}

// Validation is the gateway's verdict on a val_id.
type Validation struct {
	Status string
	Fields types.Fields
}

// Valid reports whether the gateway confirmed the payment.
func (v *Validation) Valid() bool {
	if v == nil {
		return false
	}
	s := strings.ToUpper(strings.TrimSpace(v.Status))
	return s == StatusValid || s == StatusValidated
}

// ProductName summarizes the item list as "{first} +N more".
func ProductName(names []string) string {
	filtered := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			filtered = append(filtered, n)
		}
	}
	switch len(filtered) {
	case 0:
		return "Agricultural products"
	case 1:
		return filtered[0]
	default:
		return filtered[0] + " +" + strconv.Itoa(len(filtered)-1) + " more"
	}
}
