package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/cart"
	"github.com/angelmondragon/agromarket-backend/internal/checkout/helpers"
	"github.com/angelmondragon/agromarket-backend/internal/gateway"
	"github.com/angelmondragon/agromarket-backend/internal/orders"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/internal/stock"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/metrics"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox/payloads"
)

const (
	productCategory = "Agriculture"
	productProfile  = "general"

	msgInvalidMethod = "Invalid payment method for online payment"
	msgGatewayFailed = "Failed to initialize payment session"

	// settleTimeout bounds the writes that run after the gateway answered.
	// They are detached from the request so a dropped client cannot strand them.
	settleTimeout = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderCreator interface {
	Create(ctx context.Context, tx *gorm.DB, input orders.CreateInput) (*models.Order, error)
}

type paymentCreator interface {
	Create(ctx context.Context, tx *gorm.DB, order *models.Order, customer payments.Customer) (*models.Payment, error)
}

type cartCleaner interface {
	Clear(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

// ProfileLookup resolves the buyer's account email when the delivery address
// carries none.
type ProfileLookup interface {
	BuyerEmail(ctx context.Context, uid string) (string, error)
}

// FeeQuoter prices delivery for the whole cart.
type FeeQuoter interface {
	QuoteDeliveryFee(ctx context.Context, c *models.Cart) (decimal.Decimal, error)
}

// Service starts hosted payment sessions for buyer carts.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
}

// InitiateInput is the buyer's checkout request.
type InitiateInput struct {
	UID                 string
	Role                enums.BuyerRole
	PaymentMethod       string
	Notes               *string
	SpecialInstructions *string
}

// OrderSummary describes one vendor order of the checkout.
type OrderSummary struct {
	ID          uuid.UUID       `json:"id"`
	OrderNumber string          `json:"orderNumber"`
	VendorID    uuid.UUID       `json:"vendorId"`
	Total       decimal.Decimal `json:"total"`
	TranID      string          `json:"tranId"`
}

// InitiateResult is returned once the gateway session is live.
type InitiateResult struct {
	SessionKey  string          `json:"sessionkey"`
	GatewayURL  string          `json:"gateway_url"`
	RedirectURL string          `json:"redirect_url"`
	Orders      []OrderSummary  `json:"orders"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TranID      string          `json:"tranId"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Tx          txRunner
	Carts       cart.CartRepository
	Cleanup     cartCleaner
	Orders      orderCreator
	OrderRepo   orders.Repository
	Payments    paymentCreator
	PaymentRepo payments.Repository
	Stock       stock.Restorer
	Gateway     gateway.Port
	Outbox      outboxPublisher
	Profiles    ProfileLookup
	Fees        FeeQuoter
	Metrics     *metrics.PaymentMetrics
	Logger      *logger.Logger
	BackendURL  string
	Currency    string
}

type service struct {
	tx          txRunner
	carts       cart.CartRepository
	cleanup     cartCleaner
	orders      orderCreator
	orderRepo   orders.Repository
	payments    paymentCreator
	paymentRepo payments.Repository
	stock       stock.Restorer
	gateway     gateway.Port
	outbox      outboxPublisher
	profiles    ProfileLookup
	fees        FeeQuoter
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	backendURL  string
	currency    string
}

// NewService builds the checkout service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case p.Cleanup == nil:
		return nil, fmt.Errorf("cart cleanup required")
	case p.Orders == nil:
		return nil, fmt.Errorf("order factory required")
	case p.OrderRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payment record factory required")
	case p.PaymentRepo == nil:
		return nil, fmt.Errorf("payments repository required")
	case p.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case strings.TrimSpace(p.BackendURL) == "":
		return nil, fmt.Errorf("backend url required")
	}
	currency := p.Currency
	if currency == "" {
		currency = "BDT"
	}
	return &service{
		tx:          p.Tx,
		carts:       p.Carts,
		cleanup:     p.Cleanup,
		orders:      p.Orders,
		orderRepo:   p.OrderRepo,
		payments:    p.Payments,
		paymentRepo: p.PaymentRepo,
		stock:       p.Stock,
		gateway:     p.Gateway,
		outbox:      p.Outbox,
		profiles:    p.Profiles,
		fees:        p.Fees,
		metrics:     p.Metrics,
		logg:        p.Logger,
		backendURL:  strings.TrimRight(p.BackendURL, "/"),
		currency:    currency,
	}, nil
}

type placement struct {
	order   *models.Order
	payment *models.Payment
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	uid := strings.TrimSpace(input.UID)
	if uid == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	method, err := enums.ParsePaymentMethod(strings.TrimSpace(input.PaymentMethod))
	if err != nil || !method.IsOnline() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgInvalidMethod)
	}
	ctx = s.logg.WithBuyer(ctx, uid, string(input.Role))

	c, err := s.carts.FindByUID(ctx, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "Cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	role := input.Role
	if !role.IsValid() {
		role = c.Role
	}
	if err := s.quoteDelivery(ctx, c); err != nil {
		return nil, err
	}

	projections, err := helpers.SplitByVendor(c)
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}
	customer := payments.CustomerFromAddress(*c.DeliveryAddress, s.buyerEmail(ctx, uid))

	var placed []placement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		placed = placed[:0]
		for _, projection := range projections {
			order, err := s.orders.Create(ctx, tx, orders.CreateInput{
				Projection:          projection,
				UID:                 uid,
				Role:                role,
				CartID:              c.ID,
				PaymentMethod:       method,
				Notes:               input.Notes,
				SpecialInstructions: input.SpecialInstructions,
			})
			if err != nil {
				return err
			}
			payment, err := s.payments.Create(ctx, tx, order, customer)
			if err != nil {
				return err
			}
			placed = append(placed, placement{order: order, payment: payment})
		}
		return nil
	})
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}

	primary := placed[0].payment
	ctx = s.logg.WithTransactionID(ctx, primary.TranID)
	req := s.sessionRequest(c, placed, method, customer)

	session, gerr := s.gateway.InitSession(ctx, req)
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if gerr != nil || !session.OK() {
		reason := failureReason(session, gerr)
		cause := gerr
		if cause == nil {
			cause = errors.New(reason)
		}
		if rbErr := s.rollback(settleCtx, c, placed, reason); rbErr != nil {
			s.logg.Error(ctx, "checkout rollback failed", multierr.Append(cause, rbErr))
		}
		s.metrics.IncCheckout("gateway_failed")
		message := msgGatewayFailed
		if session != nil && session.FailedReason != "" {
			message = session.FailedReason
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayInit, cause, message).
			WithDetails(map[string]any{"failedreason": reason})
	}

	if err := s.finalize(settleCtx, c, placed, session, req.TotalAmount); err != nil {
		// The session is live; the buyer can still pay and callbacks correlate
		// by tran_id. The sweep expires the payments if they never settle.
		s.logg.Error(ctx, "failed to finalize checkout after session init", err)
	}
	s.metrics.IncCheckout("initiated")
	s.logg.Info(s.logg.WithField(ctx, "orders", len(placed)), "payment session initiated")

	return buildResult(placed, session, req.TotalAmount), nil
}

func (s *service) quoteDelivery(ctx context.Context, c *models.Cart) error {
	if s.fees == nil || c.DeliveryMethod == nil {
		return nil
	}
	fee, err := s.fees.QuoteDeliveryFee(ctx, c)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "quote delivery fee")
	}
	c.DeliveryFee = fee
	return nil
}

func (s *service) buyerEmail(ctx context.Context, uid string) string {
	if s.profiles == nil {
		return ""
	}
	email, err := s.profiles.BuyerEmail(ctx, uid)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "buyer profile lookup failed")
		return ""
	}
	return strings.TrimSpace(email)
}

func (s *service) sessionRequest(c *models.Cart, placed []placement, method enums.PaymentMethod, customer payments.Customer) gateway.SessionRequest {
	total := decimal.Zero
	numbers := make([]string, 0, len(placed))
	for _, p := range placed {
		total = total.Add(p.order.Total)
		numbers = append(numbers, p.order.OrderNumber)
	}
	names := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		names = append(names, item.Name)
	}
	party := gateway.Party{
		Name:     customer.Name,
		Email:    customer.Email,
		Phone:    customer.Phone,
		Address1: customer.Address1,
		Address2: customer.Address2,
		City:     customer.City,
		State:    customer.State,
		Postcode: customer.Postcode,
		Country:  customer.Country,
	}
	return gateway.SessionRequest{
		TotalAmount:     total,
		Currency:        s.currency,
		TranID:          placed[0].payment.TranID,
		SuccessURL:      s.backendURL + "/api/payment/success",
		FailURL:         s.backendURL + "/api/payment/fail",
		CancelURL:       s.backendURL + "/api/payment/cancel",
		IPNURL:          s.backendURL + "/api/payment/ipn",
		Customer:        party,
		Shipping:        party,
		NumOfItems:      len(c.Items),
		ProductName:     gateway.ProductName(names),
		ProductCategory: productCategory,
		ProductProfile:  productProfile,
		ValueA:          payments.Correlation{OrderNumbers: numbers}.Encode(),
		ValueB:          c.UID,
		ValueC:          string(method),
		ValueD:          c.ID.String(),
	}
}

// rollback undoes everything phase one wrote: stock comes back once per
// order, then payments, items and orders are removed.
func (s *service) rollback(ctx context.Context, c *models.Cart, placed []placement, reason string) error {
	orderIDs := make([]uuid.UUID, 0, len(placed))
	paymentIDs := make([]uuid.UUID, 0, len(placed))
	numbers := make([]string, 0, len(placed))
	for _, p := range placed {
		orderIDs = append(orderIDs, p.order.ID)
		paymentIDs = append(paymentIDs, p.payment.ID)
		numbers = append(numbers, p.order.OrderNumber)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, id := range orderIDs {
			if _, err := s.stock.RestoreOrder(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := s.paymentRepo.WithTx(tx).DeleteByIDs(ctx, paymentIDs); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if err := s.orderRepo.WithTx(tx).DeleteByIDs(ctx, orderIDs); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutRolledBack,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   c.ID,
			Actor:         &outbox.Actor{UID: c.UID, Role: string(c.Role)},
			Data: payloads.CheckoutRolledBackEvent{
				CartID:       c.ID,
				UID:          c.UID,
				OrderNumbers: numbers,
				Reason:       reason,
			},
		})
	})
}

func (s *service) finalize(ctx context.Context, c *models.Cart, placed []placement, session *gateway.Session, total decimal.Decimal) error {
	paymentIDs := make([]uuid.UUID, 0, len(placed))
	event := payloads.CheckoutInitiatedEvent{
		CartID:   c.ID,
		UID:      c.UID,
		Amount:   total,
		Currency: s.currency,
	}
	for _, p := range placed {
		paymentIDs = append(paymentIDs, p.payment.ID)
		event.OrderIDs = append(event.OrderIDs, p.order.ID)
		event.OrderNumbers = append(event.OrderNumbers, p.order.OrderNumber)
		event.TranIDs = append(event.TranIDs, p.payment.TranID)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.paymentRepo.WithTx(tx).SetSessionKey(ctx, paymentIDs, session.SessionKey, session.Raw); err != nil {
			return fmt.Errorf("store session key: %w", err)
		}
		if err := s.cleanup.Clear(ctx, tx, c.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutInitiated,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   c.ID,
			Actor:         &outbox.Actor{UID: c.UID, Role: string(c.Role)},
			Data:          event,
			OccurredAt:    time.Now().UTC(),
		})
	})
}

func failureReason(session *gateway.Session, err error) string {
	if session != nil && session.FailedReason != "" {
		return session.FailedReason
	}
	if err != nil {
		return err.Error()
	}
	return "gateway did not return a payment page"
}

func buildResult(placed []placement, session *gateway.Session, total decimal.Decimal) *InitiateResult {
	out := &InitiateResult{
		SessionKey:  session.SessionKey,
		GatewayURL:  session.GatewayURL,
		RedirectURL: session.RedirectURL,
		TotalAmount: total,
		TranID:      placed[0].payment.TranID,
		Orders:      make([]OrderSummary, 0, len(placed)),
	}
	for _, p := range placed {
		out.Orders = append(out.Orders, OrderSummary{
			ID:          p.order.ID,
			OrderNumber: p.order.OrderNumber,
			VendorID:    p.order.VendorID,
			Total:       p.order.Total,
			TranID:      p.payment.TranID,
		})
	}
	return out
}

var _ cartCleaner = (*cart.Cleanup)(nil)
