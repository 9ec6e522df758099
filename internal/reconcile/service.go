package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/gateway"
	"github.com/angelmondragon/agromarket-backend/internal/notifications"
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
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

// Channel names the callback entry point.
type Channel string

const (
	ChannelSuccess Channel = "success"
	ChannelFail    Channel = "fail"
	ChannelCancel  Channel = "cancel"
	ChannelIPN     Channel = "ipn"
)

// Outcome describes what a callback did.
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeClosed    Outcome = "closed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePending   Outcome = "pending"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnknown   Outcome = "unknown"
)

const (
	MsgMissingTranID      = "No transaction ID found"
	MsgPaymentNotFound    = "Payment record not found"
	MsgValidationRejected = "Payment validation failed"
)

var errAlreadyMoved = errors.New("payment already left pending")

// Result is returned by every entry point that did not fail.
type Result struct {
	TranID  string
	Status  enums.PaymentStatus
	Outcome Outcome
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the reconciler.
type ServiceParams struct {
	Tx                txRunner
	Payments          payments.Repository
	Orders            orders.Repository
	Stock             stock.Restorer
	Gateway           gateway.Port
	Outbox            outboxPublisher
	Notifier          notifications.Port
	Guard             *Guard
	RequireValidation bool
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
	Now               func() time.Time
}

// Service maps gateway callbacks onto payment and order state. Every entry
// point is safe to run more than once for the same tran_id.
type Service struct {
	tx                txRunner
	payments          payments.Repository
	orders            orders.Repository
	stock             stock.Restorer
	gateway           gateway.Port
	outbox            outboxPublisher
	notifier          notifications.Port
	guard             *Guard
	requireValidation bool
	metrics           *metrics.PaymentMetrics
	logg              *logger.Logger
	now               func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		tx:                p.Tx,
		payments:          p.Payments,
		orders:            p.Orders,
		stock:             p.Stock,
		gateway:           p.Gateway,
		outbox:            p.Outbox,
		notifier:          notifier,
		guard:             p.Guard,
		requireValidation: p.RequireValidation,
		metrics:           p.Metrics,
		logg:              p.Logger,
		now:               func() time.Time { return now().UTC() },
	}, nil
}

// Success handles the browser redirect after a completed payment.
func (s *Service) Success(ctx context.Context, fields types.Fields) (*Result, error) {
	return s.handle(ctx, ChannelSuccess, fields, s.success)
}

// Fail handles the browser redirect after a declined payment.
func (s *Service) Fail(ctx context.Context, fields types.Fields) (*Result, error) {
	return s.handle(ctx, ChannelFail, fields, func(ctx context.Context, ch Channel, p *models.Payment, f types.Fields) (*Result, error) {
		return s.close(ctx, ch, p, f, payments.EventFailed)
	})
}

// Cancel handles the browser redirect after the buyer abandoned the page.
func (s *Service) Cancel(ctx context.Context, fields types.Fields) (*Result, error) {
	return s.handle(ctx, ChannelCancel, fields, func(ctx context.Context, ch Channel, p *models.Payment, f types.Fields) (*Result, error) {
		return s.close(ctx, ch, p, f, payments.EventCancelled)
	})
}

// IPN handles the gateway's server-to-server notification. An unknown
// tran_id is logged and acknowledged so the gateway stops retrying.
func (s *Service) IPN(ctx context.Context, fields types.Fields) (*Result, error) {
	res, err := s.handle(ctx, ChannelIPN, fields, s.ipn)
	if pkgerrors.Is(err, pkgerrors.CodeReconcile) {
		return &Result{TranID: fields.Get("tran_id"), Outcome: OutcomeUnknown}, nil
	}
	return res, err
}

type handlerFunc func(ctx context.Context, channel Channel, payment *models.Payment, fields types.Fields) (*Result, error)

func (s *Service) handle(ctx context.Context, channel Channel, fields types.Fields, fn handlerFunc) (*Result, error) {
	tranID := strings.TrimSpace(fields.Get("tran_id"))
	if tranID == "" {
		s.metrics.IncCallback(string(channel), "missing_tran_id")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, MsgMissingTranID)
	}
	ctx = s.logg.WithFields(s.logg.WithTransactionID(ctx, tranID), map[string]any{"channel": channel})

	payment, err := s.payments.FindByTranID(ctx, tranID)
	if err != nil {
		if db.IsNotFound(err) {
			s.logg.Warn(ctx, "callback for unknown payment")
			s.metrics.IncCallback(string(channel), string(OutcomeUnknown))
			return nil, pkgerrors.New(pkgerrors.CodeReconcile, MsgPaymentNotFound)
		}
		s.metrics.IncCallback(string(channel), "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status.IsTerminal() {
		s.metrics.IncCallback(string(channel), string(OutcomeDuplicate))
		return resultFor(payment, OutcomeDuplicate), nil
	}

	acquired, err := s.guard.Acquire(ctx, channel, tranID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "callback guard unavailable")
		acquired = true
	}
	if !acquired {
		s.metrics.IncCallback(string(channel), string(OutcomeDuplicate))
		return resultFor(payment, OutcomeDuplicate), nil
	}

	res, err := fn(ctx, channel, payment, fields)
	if err != nil || res.Outcome == OutcomePending || res.Outcome == OutcomeIgnored {
		if rerr := s.guard.Release(ctx, channel, tranID); rerr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", rerr.Error()), "release callback guard")
		}
	}
	if err != nil {
		s.metrics.IncCallback(string(channel), "error")
		return nil, err
	}
	s.metrics.IncCallback(string(channel), string(res.Outcome))
	return res, nil
}

func (s *Service) success(ctx context.Context, channel Channel, payment *models.Payment, fields types.Fields) (*Result, error) {
	if !s.requireValidation {
		return s.settle(ctx, channel, payment, fields, payments.SettlementFromFields(fields, s.now()))
	}

	valID := strings.TrimSpace(fields.Get("val_id"))
	if valID == "" {
		s.logg.Info(ctx, "success redirect without val_id, waiting for ipn")
		return resultFor(payment, OutcomePending), nil
	}
	settlement, err := s.validated(ctx, payment, fields, valID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeReconcile) {
			return nil, err
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "validation unavailable, waiting for ipn")
		return resultFor(payment, OutcomePending), nil
	}
	return s.settle(ctx, channel, payment, fields, settlement)
}

func (s *Service) ipn(ctx context.Context, channel Channel, payment *models.Payment, fields types.Fields) (*Result, error) {
	switch strings.ToUpper(strings.TrimSpace(fields.Get("status"))) {
	case gateway.StatusValid, gateway.StatusValidated:
		valID := strings.TrimSpace(fields.Get("val_id"))
		if valID == "" {
			s.logg.Warn(ctx, "ipn reported valid without val_id")
			return resultFor(payment, OutcomeIgnored), nil
		}
		settlement, err := s.validated(ctx, payment, fields, valID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeReconcile) {
				s.logg.Warn(ctx, "ipn validation rejected")
				return resultFor(payment, OutcomeIgnored), nil
			}
			return nil, err
		}
		res, err := s.settle(ctx, channel, payment, fields, settlement)
		if pkgerrors.Is(err, pkgerrors.CodeReconcile) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ipn settlement rejected")
			return resultFor(payment, OutcomeIgnored), nil
		}
		return res, err
	case gateway.StatusFailed:
		return s.close(ctx, channel, payment, fields, payments.EventFailed)
	case gateway.StatusCancelled:
		return s.close(ctx, channel, payment, fields, payments.EventCancelled)
	default:
		return resultFor(payment, OutcomeIgnored), nil
	}
}

// validated asks the gateway to confirm valID and builds the settlement from
// its answer. A rejected validation is a RECONCILIATION_ERROR; transport
// failures are DEPENDENCY_ERROR.
func (s *Service) validated(ctx context.Context, payment *models.Payment, fields types.Fields, valID string) (payments.Settlement, error) {
	validation, err := s.gateway.Validate(ctx, valID)
	if err != nil {
		return payments.Settlement{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate payment")
	}
	if !validation.Valid() {
		return payments.Settlement{}, pkgerrors.New(pkgerrors.CodeReconcile, MsgValidationRejected).
			WithDetails(map[string]any{"status": validation.Status})
	}
	if got := strings.TrimSpace(validation.Fields.Get("tran_id")); got != payment.TranID {
		return payments.Settlement{}, pkgerrors.New(pkgerrors.CodeReconcile, MsgValidationRejected).
			WithDetails(map[string]any{"tran_id": got})
	}

	settlement := payments.SettlementFromFields(validation.Fields, s.now())
	if settlement.ValID == "" {
		settlement.ValID = valID
	}
	settlement.Payload = fields
	settlement.Validation = validation.Fields
	return settlement, nil
}

func (s *Service) settle(ctx context.Context, channel Channel, primary *models.Payment, fields types.Fields, settlement payments.Settlement) (*Result, error) {
	transition := payments.Next(primary.Status, payments.EventValidated)
	if !transition.Changed() {
		return resultFor(primary, OutcomeDuplicate), nil
	}
	// validated settlements take the correlation from the gateway, not the caller
	source := fields
	if settlement.Validation != nil {
		source = settlement.Validation
	}
	group, err := s.group(ctx, primary, source)
	if err != nil {
		return nil, err
	}
	if settlement.Validation != nil {
		if err := checkAmount(settlement.Validation, group); err != nil {
			return nil, err
		}
	}
	paymentRef := settlement.BankTranID
	if paymentRef == "" {
		paymentRef = primary.TranID
	}

	var settled []*models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		settled = settled[:0]
		paymentsTx := s.payments.WithTx(tx)
		ordersTx := s.orders.WithTx(tx)
		for i, p := range group {
			changed, err := paymentsTx.MarkValid(ctx, p.ID, settlement)
			if err != nil {
				return fmt.Errorf("mark payment valid: %w", err)
			}
			if !changed {
				if i == 0 {
					return errAlreadyMoved
				}
				continue
			}
			p.Status = transition.To
			if p.Order != nil && transition.Has(payments.EffectMarkOrdersPaid) {
				if _, err := ordersTx.MarkPaid(ctx, p.Order, paymentRef, settlement.CompletedAt); err != nil {
					return fmt.Errorf("mark order paid: %w", err)
				}
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentSettled,
				AggregateType: enums.AggregatePayment,
				AggregateID:   p.ID,
				Actor:         outbox.SystemActor,
				Data: payloads.PaymentSettledEvent{
					PaymentID:   p.ID,
					TranID:      p.TranID,
					ValID:       settlement.ValID,
					OrderID:     p.OrderID,
					OrderNumber: p.OrderNumber,
					VendorID:    vendorOf(p),
					UID:         p.UID,
					Amount:      p.Amount,
					Channel:     string(channel),
					SettledAt:   settlement.CompletedAt,
				},
			}); err != nil {
				return err
			}
			settled = append(settled, p)
		}
		return nil
	})
	if errors.Is(err, errAlreadyMoved) {
		return resultFor(primary, OutcomeDuplicate), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle payment")
	}

	s.logg.Info(s.logg.WithField(ctx, "orders", len(settled)), "payment settled")
	if transition.Has(payments.EffectNotify) {
		s.notify(ctx, settled, notifications.TypePaymentSettled, "Payment received", "Payment confirmed for order")
	}
	return resultFor(primary, OutcomeSettled), nil
}

func (s *Service) close(ctx context.Context, channel Channel, primary *models.Payment, fields types.Fields, event payments.Event) (*Result, error) {
	transition := payments.Next(primary.Status, event)
	if !transition.Changed() {
		return resultFor(primary, OutcomeDuplicate), nil
	}
	group, err := s.group(ctx, primary, fields)
	if err != nil {
		return nil, err
	}

	eventType, notifyType := enums.EventPaymentFailed, notifications.TypePaymentFailed
	title, note := "Payment failed", "payment failed"
	if transition.To == enums.PaymentStatusCancelled {
		eventType, notifyType = enums.EventPaymentCanceled, notifications.TypePaymentCanceled
		title, note = "Payment cancelled", "payment cancelled"
	}
	reason := fields.Get("error")
	if reason == "" {
		reason = fields.Get("failedreason")
	}
	at := s.now()

	var closed []*models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		closed = closed[:0]
		paymentsTx := s.payments.WithTx(tx)
		ordersTx := s.orders.WithTx(tx)
		for i, p := range group {
			changed, err := paymentsTx.MarkClosed(ctx, p.ID, transition.To, fields, at)
			if err != nil {
				return fmt.Errorf("close payment: %w", err)
			}
			if !changed {
				if i == 0 {
					return errAlreadyMoved
				}
				continue
			}
			p.Status = transition.To
			if p.Order != nil && transition.Has(payments.EffectMarkOrdersFailed) {
				if _, err := ordersTx.MarkCancelled(ctx, p.Order, true, note, at); err != nil {
					return fmt.Errorf("cancel order: %w", err)
				}
			}
			if transition.Has(payments.EffectRestoreStock) {
				if _, err := s.stock.RestoreOrder(ctx, tx, p.OrderID); err != nil {
					return err
				}
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     eventType,
				AggregateType: enums.AggregatePayment,
				AggregateID:   p.ID,
				Actor:         outbox.SystemActor,
				Data: payloads.PaymentClosedEvent{
					PaymentID:   p.ID,
					TranID:      p.TranID,
					OrderID:     p.OrderID,
					OrderNumber: p.OrderNumber,
					UID:         p.UID,
					Status:      transition.To,
					Reason:      reason,
					Channel:     string(channel),
					ClosedAt:    at,
				},
			}); err != nil {
				return err
			}
			closed = append(closed, p)
		}
		return nil
	})
	if errors.Is(err, errAlreadyMoved) {
		return resultFor(primary, OutcomeDuplicate), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close payment")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"orders": len(closed), "status": transition.To}), "payment closed")
	if transition.Has(payments.EffectNotify) {
		s.notify(ctx, closed, notifyType, title, title+" for order")
	}
	return resultFor(primary, OutcomeClosed), nil
}

// group returns the primary payment followed by the payments of its sibling
// orders. The correlation payload only names candidates; a sibling is kept
// when it was created by the same checkout as the primary.
func (s *Service) group(ctx context.Context, primary *models.Payment, fields types.Fields) ([]*models.Payment, error) {
	correlation, err := payments.DecodeCorrelation(fields.Get("value_a"), primary.OrderNumber)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "unreadable correlation payload, reconciling primary order only")
	}
	group := []*models.Payment{primary}
	siblings := correlation.Siblings(primary.OrderNumber)
	if len(siblings) == 0 {
		return group, nil
	}
	rows, err := s.payments.FindCheckoutSiblings(ctx, primary, siblings)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sibling payments")
	}
	if len(rows) != len(siblings) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"listed": len(siblings), "matched": len(rows)}),
			"correlation lists orders outside this checkout")
	}
	for i := range rows {
		group = append(group, &rows[i])
	}
	return group, nil
}

// checkAmount rejects a validation whose amount differs from what the group owes.
func checkAmount(validation types.Fields, group []*models.Payment) error {
	want := decimal.Zero
	for _, p := range group {
		want = want.Add(p.Amount)
	}
	got, err := decimal.NewFromString(strings.TrimSpace(validation.Get("amount")))
	if err != nil || !got.Equal(want) {
		return pkgerrors.New(pkgerrors.CodeReconcile, MsgValidationRejected).
			WithDetails(map[string]any{"amount": validation.Get("amount"), "expected": want.StringFixed(2)})
	}
	return nil
}

// notify tells the buyer once and each vendor about its own order. Delivery
// failures are logged and never fail the callback.
func (s *Service) notify(ctx context.Context, group []*models.Payment, eventType, title, message string) {
	if len(group) == 0 {
		return
	}
	at := s.now()
	numbers := make([]string, 0, len(group))
	for _, p := range group {
		numbers = append(numbers, p.OrderNumber)
	}
	primary := group[0]
	buyerEvent := notifications.Event{
		Type:       eventType,
		Title:      title,
		Message:    message + " " + strings.Join(numbers, ", "),
		Data:       map[string]any{"tran_id": primary.TranID, "order_numbers": numbers, "status": primary.Status},
		OccurredAt: at,
	}
	if err := s.notifier.Send(ctx, primary.UID, buyerEvent); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "notify buyer")
	}
	for _, p := range group {
		vendor := vendorOf(p)
		if vendor == uuid.Nil {
			continue
		}
		vendorEvent := notifications.Event{
			Type:       eventType,
			Title:      title,
			Message:    message + " " + p.OrderNumber,
			Data:       map[string]any{"order_number": p.OrderNumber, "amount": p.Amount.StringFixed(2), "status": p.Status},
			OccurredAt: at,
		}
		if err := s.notifier.Send(ctx, vendor.String(), vendorEvent); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "notify vendor")
		}
	}
}

func vendorOf(p *models.Payment) uuid.UUID {
	if p.Order == nil {
		return uuid.Nil
	}
	return p.Order.VendorID
}

func resultFor(p *models.Payment, outcome Outcome) *Result {
	return &Result{TranID: p.TranID, Status: p.Status, Outcome: outcome}
}
