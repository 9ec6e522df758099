package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/checkout/helpers"
	"github.com/angelmondragon/agromarket-backend/internal/gateway/gatewaytest"
	"github.com/angelmondragon/agromarket-backend/internal/notifications"
	"github.com/angelmondragon/agromarket-backend/internal/orders"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/internal/stock"
	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agromarket-backend/pkg/errors"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox"
	"github.com/angelmondragon/agromarket-backend/pkg/redis"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

const buyerUID = "uid-buyer-9"

type memoryGuardStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryGuardStore() *memoryGuardStore {
	return &memoryGuardStore{keys: map[string]string{}}
}

func (m *memoryGuardStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.keys[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (m *memoryGuardStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "held"
	return true, nil
}

func (m *memoryGuardStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryGuardStore) held(channel Channel, tranID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[redis.CallbackKey(string(channel), tranID)]
	return ok
}

type sent struct {
	recipient string
	event     notifications.Event
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingNotifier) Send(_ context.Context, recipient string, event notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{recipient: recipient, event: event})
	return nil
}

type fixture struct {
	conn     *gorm.DB
	svc      *Service
	gateway  *gatewaytest.Fake
	guard    *memoryGuardStore
	notifier *recordingNotifier
	payments []*models.Payment
	orders   []*models.Order
	products []models.Product
}

// newFixture places a two vendor checkout: rice x2 for one vendor, beans x1
// for another. Stock starts at 10 and 5 and is reserved.
func newFixture(t *testing.T, requireValidation bool) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	ctx := context.Background()

	rice := dbtest.Product(t, conn, uuid.New(), "Rice", 10)
	beans := dbtest.Product(t, conn, uuid.New(), "Beans", 5)
	method := enums.DeliveryMethodStandard
	cart := &models.Cart{
		ID:              uuid.New(),
		UID:             buyerUID,
		DeliveryMethod:  &method,
		DeliveryFee:     decimal.NewFromInt(70),
		DeliveryAddress: &types.DeliveryAddress{AddressLine1: "Road 7", City: "Khulna", Phone: "01800000000"},
		Items: []models.CartItem{
			{ProductID: rice.ID, Product: &rice, Name: "Rice", Price: decimal.NewFromInt(100), Quantity: 2},
			{ProductID: beans.ID, Product: &beans, Name: "Beans", Price: decimal.NewFromInt(50), Quantity: 1},
		},
	}
	projections, err := helpers.SplitByVendor(cart)
	require.NoError(t, err)

	ledger := stock.NewLedger()
	orderRepo := orders.NewRepository(conn)
	paymentRepo := payments.NewRepository(conn)
	factory, err := orders.NewFactory(orderRepo, ledger, nil)
	require.NoError(t, err)
	records, err := payments.NewRecordFactory(paymentRepo, nil, "BDT")
	require.NoError(t, err)

	f := &fixture{conn: conn, products: []models.Product{rice, beans}}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		for _, projection := range projections {
			order, err := factory.Create(ctx, tx, orders.CreateInput{
				Projection:    projection,
				UID:           buyerUID,
				Role:          enums.BuyerRoleClient,
				CartID:        cart.ID,
				PaymentMethod: enums.PaymentMethodCard,
			})
			if err != nil {
				return err
			}
			payment, err := records.Create(ctx, tx, order, payments.CustomerFromAddress(*cart.DeliveryAddress, ""))
			if err != nil {
				return err
			}
			f.orders = append(f.orders, order)
			f.payments = append(f.payments, payment)
		}
		return nil
	}))

	f.gateway = &gatewaytest.Fake{}
	f.guard = newMemoryGuardStore()
	f.notifier = &recordingNotifier{}
	f.svc, err = NewService(ServiceParams{
		Tx:                db.FromGorm(conn),
		Payments:          paymentRepo,
		Orders:            orderRepo,
		Stock:             ledger,
		Gateway:           f.gateway,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Notifier:          f.notifier,
		Guard:             NewGuard(f.guard, time.Hour),
		RequireValidation: requireValidation,
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) correlation() string {
	numbers := make([]string, 0, len(f.orders))
	for _, o := range f.orders {
		numbers = append(numbers, o.OrderNumber)
	}
	return payments.Correlation{OrderNumbers: numbers}.Encode()
}

func (f *fixture) fields(extra map[string]string) types.Fields {
	out := types.Fields{"tran_id": f.payments[0].TranID, "value_a": f.correlation(), "value_b": buyerUID}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// approve makes the gateway confirm valID for the whole checkout.
func (f *fixture) approve(valID string) {
	total := decimal.Zero
	for _, p := range f.payments {
		total = total.Add(p.Amount)
	}
	f.gateway.Approve(valID, types.Fields{
		"tran_id": f.payments[0].TranID,
		"amount":  total.StringFixed(2),
		"value_a": f.correlation(),
	})
}

func (f *fixture) payment(t *testing.T, i int) models.Payment {
	t.Helper()
	var p models.Payment
	require.NoError(t, f.conn.First(&p, "id = ?", f.payments[i].ID).Error)
	return p
}

func (f *fixture) order(t *testing.T, i int) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.conn.First(&o, "id = ?", f.orders[i].ID).Error)
	return o
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestSuccessSettlesPrimaryAndSiblingsOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	fields := f.fields(map[string]string{"status": "VALID", "val_id": "VAL-1", "bank_tran_id": "BANK-77", "card_type": "VISA-Dutch Bangla"})

	res, err := f.svc.Success(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, enums.PaymentStatusValid, res.Status)

	for i := range f.payments {
		p := f.payment(t, i)
		assert.Equal(t, enums.PaymentStatusValid, p.Status)
		require.NotNil(t, p.CompletedAt)
		require.NotNil(t, p.CardType)
		assert.Equal(t, "VISA-Dutch Bangla", *p.CardType)
		assert.Equal(t, "BANK-77", p.GatewayResponse.Get("bank_tran_id"))

		o := f.order(t, i)
		assert.Equal(t, enums.OrderStatusConfirmed, o.Status)
		assert.Equal(t, enums.OrderPaymentPaid, o.PaymentStatus)
		assert.True(t, o.IsPaid)
		require.NotNil(t, o.PaymentID)
		assert.Equal(t, "BANK-77", *o.PaymentID)
		assert.Len(t, o.StatusHistory, 2)
	}
	assert.Equal(t, 8, dbtest.StockOf(t, f.conn, f.products[0].ID))
	assert.Equal(t, 4, dbtest.StockOf(t, f.conn, f.products[1].ID))
	assert.EqualValues(t, 2, f.events(t, enums.EventPaymentSettled))

	require.Len(t, f.notifier.sent, 3)
	assert.Equal(t, buyerUID, f.notifier.sent[0].recipient)
	assert.Equal(t, notifications.TypePaymentSettled, f.notifier.sent[0].event.Type)
	assert.Equal(t, f.orders[0].VendorID.String(), f.notifier.sent[1].recipient)
	assert.Equal(t, f.orders[1].VendorID.String(), f.notifier.sent[2].recipient)

	again, err := f.svc.Success(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.Equal(t, enums.PaymentStatusValid, again.Status)
	assert.EqualValues(t, 2, f.events(t, enums.EventPaymentSettled))
	assert.Len(t, f.notifier.sent, 3)
}

func TestSuccessWithoutValIDStaysPending(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.svc.Success(context.Background(), f.fields(map[string]string{"status": "VALID"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
	assert.Empty(t, f.gateway.Validations)
	assert.False(t, f.guard.held(ChannelSuccess, f.payments[0].TranID), "pending outcome must release the guard")
}

func TestSuccessValidatesBeforeSettling(t *testing.T) {
	f := newFixture(t, true)
	f.approve("VAL-9")

	res, err := f.svc.Success(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-9"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, []string{"VAL-9"}, f.gateway.Validations)

	p := f.payment(t, 0)
	require.NotNil(t, p.ValID)
	assert.Equal(t, "VAL-9", *p.ValID)
	require.NotNil(t, p.BankTranID)
	assert.Equal(t, "BANK-VAL-9", *p.BankTranID)
	assert.Equal(t, "VALID", p.ValidationData.Get("status"))
	assert.Equal(t, enums.PaymentStatusValid, f.payment(t, 1).Status)
}

func TestSuccessRejectedValidationLeavesState(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.ValidationState = "INVALID_TRANSACTION"

	_, err := f.svc.Success(context.Background(), f.fields(map[string]string{"val_id": "VAL-forged"}))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeReconcile))
	assert.Equal(t, MsgValidationRejected, pkgerrors.As(err).Message())
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
	assert.Equal(t, enums.OrderStatusPending, f.order(t, 0).Status)
	assert.False(t, f.guard.held(ChannelSuccess, f.payments[0].TranID))
}

func TestSuccessValidationOutageWaitsForIPN(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.ValidateErr = gatewaytest.ErrDown

	res, err := f.svc.Success(context.Background(), f.fields(map[string]string{"val_id": "VAL-2"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
}

func TestSuccessUnknownAndMissingTransaction(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Success(ctx, types.Fields{})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, MsgMissingTranID, pkgerrors.As(err).Message())

	_, err = f.svc.Success(ctx, types.Fields{"tran_id": "TXN-NOPE"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeReconcile))
	assert.Equal(t, MsgPaymentNotFound, pkgerrors.As(err).Message())
}

func TestFailRestoresStockExactlyOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	fields := f.fields(map[string]string{"status": "FAILED", "error": "Insufficient balance"})

	res, err := f.svc.Fail(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, res.Outcome)
	assert.Equal(t, enums.PaymentStatusFailed, res.Status)

	again, err := f.svc.Fail(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, again.Outcome)

	// A late cancel for the same transaction must not move it either.
	late, err := f.svc.Cancel(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, late.Outcome)
	assert.Equal(t, enums.PaymentStatusFailed, late.Status)

	assert.Equal(t, 10, dbtest.StockOf(t, f.conn, f.products[0].ID))
	assert.Equal(t, 5, dbtest.StockOf(t, f.conn, f.products[1].ID))
	for i := range f.orders {
		o := f.order(t, i)
		assert.Equal(t, enums.OrderStatusCancelled, o.Status)
		assert.Equal(t, enums.OrderPaymentFailed, o.PaymentStatus)
		assert.NotNil(t, o.StockRestoredAt)
		assert.Equal(t, enums.PaymentStatusFailed, f.payment(t, i).Status)
	}
	assert.EqualValues(t, 2, f.events(t, enums.EventPaymentFailed))
	assert.Zero(t, f.events(t, enums.EventPaymentCanceled))
}

func TestCancelClosesAsCancelled(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.svc.Cancel(context.Background(), f.fields(nil))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, res.Status)
	assert.Equal(t, enums.PaymentStatusCancelled, f.payment(t, 1).Status)
	assert.Equal(t, 10, dbtest.StockOf(t, f.conn, f.products[0].ID))
	assert.EqualValues(t, 2, f.events(t, enums.EventPaymentCanceled))
	require.NotEmpty(t, f.notifier.sent)
	assert.Equal(t, notifications.TypePaymentCanceled, f.notifier.sent[0].event.Type)
}

func TestSettledPaymentNeverMovesBack(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Success(ctx, f.fields(map[string]string{"bank_tran_id": "BANK-1"}))
	require.NoError(t, err)

	res, err := f.svc.Fail(ctx, f.fields(nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	res, err = f.svc.IPN(ctx, f.fields(map[string]string{"status": "CANCELLED"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	assert.Equal(t, enums.PaymentStatusValid, f.payment(t, 0).Status)
	assert.Equal(t, 8, dbtest.StockOf(t, f.conn, f.products[0].ID))
}

func TestMalformedCorrelationSettlesPrimaryOnly(t *testing.T) {
	f := newFixture(t, false)

	fields := f.fields(nil)
	fields["value_a"] = "not-json"
	_, err := f.svc.Success(context.Background(), fields)
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusValid, f.payment(t, 0).Status)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 1).Status)
	assert.Equal(t, enums.OrderStatusPending, f.order(t, 1).Status)
}

func TestHeldGuardShortCircuits(t *testing.T) {
	f := newFixture(t, false)
	key := redis.CallbackKey(string(ChannelFail), f.payments[0].TranID)
	_, _ = f.guard.SetNX(context.Background(), key, "other-worker", time.Minute)

	res, err := f.svc.Fail(context.Background(), f.fields(nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
	assert.Equal(t, 8, dbtest.StockOf(t, f.conn, f.products[0].ID))
}

func TestIPN(t *testing.T) {
	t.Run("valid notification is re-validated", func(t *testing.T) {
		f := newFixture(t, true)
		f.approve("VAL-5")
		res, err := f.svc.IPN(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-5"}))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSettled, res.Outcome)
		assert.Equal(t, []string{"VAL-5"}, f.gateway.Validations)
		assert.Equal(t, enums.PaymentStatusValid, f.payment(t, 1).Status)
	})

	t.Run("rejected validation is ignored", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.ValidationState = "INVALID_TRANSACTION"
		res, err := f.svc.IPN(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-5"}))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
		assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
	})

	t.Run("validation outage is an error so the gateway retries", func(t *testing.T) {
		f := newFixture(t, true)
		f.gateway.ValidateErr = gatewaytest.ErrDown
		_, err := f.svc.IPN(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-5"}))
		require.Error(t, err)
		assert.False(t, f.guard.held(ChannelIPN, f.payments[0].TranID))
	})

	t.Run("failed notification closes the payment", func(t *testing.T) {
		f := newFixture(t, true)
		res, err := f.svc.IPN(context.Background(), f.fields(map[string]string{"status": "FAILED"}))
		require.NoError(t, err)
		assert.Equal(t, OutcomeClosed, res.Outcome)
		assert.Equal(t, 10, dbtest.StockOf(t, f.conn, f.products[0].ID))
	})

	t.Run("unknown transaction is acknowledged", func(t *testing.T) {
		f := newFixture(t, true)
		res, err := f.svc.IPN(context.Background(), types.Fields{"tran_id": "TXN-NOPE", "status": "VALID"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknown, res.Outcome)
	})

	t.Run("missing tran_id is rejected", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.svc.IPN(context.Background(), types.Fields{"status": "VALID"})
		require.Error(t, err)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	})
}

func TestIPNAmountMismatchIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.Approve("VAL-short", types.Fields{
		"tran_id": f.payments[0].TranID,
		"amount":  "1.00",
		"value_a": f.correlation(),
	})

	res, err := f.svc.IPN(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-short"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 1).Status)
}

func TestForgedCorrelationCannotSettleAnotherCheckout(t *testing.T) {
	f := newFixture(t, true)
	// the second order now belongs to a different, unpaid checkout
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.orders[1].ID).Update("cart_id", uuid.New()).Error)

	primaryOnly := payments.Correlation{OrderNumbers: []string{f.orders[0].OrderNumber}}.Encode()
	f.gateway.Approve("VAL-cheap", types.Fields{
		"tran_id": f.payments[0].TranID,
		"amount":  f.payments[0].Amount.StringFixed(2),
		"value_a": primaryOnly,
	})

	res, err := f.svc.Success(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-cheap"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.Equal(t, enums.PaymentStatusValid, f.payment(t, 0).Status)

	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 1).Status)
	o := f.order(t, 1)
	assert.Equal(t, enums.OrderStatusPending, o.Status)
	assert.Equal(t, enums.OrderPaymentUnpaid, o.PaymentStatus)
}

func TestTrustedRedirectIgnoresOrdersOutsideCheckout(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.orders[1].ID).Update("cart_id", uuid.New()).Error)

	_, err := f.svc.Success(context.Background(), f.fields(map[string]string{"bank_tran_id": "BANK-2"}))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusValid, f.payment(t, 0).Status)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 1).Status)
}

func TestSessionKeyBindsSiblings(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.conn.Model(&models.Payment{}).Where("id = ?", f.payments[0].ID).Update("session_key", "SESSION-A").Error)
	require.NoError(t, f.conn.Model(&models.Payment{}).Where("id = ?", f.payments[1].ID).Update("session_key", "SESSION-B").Error)

	_, err := f.svc.Fail(context.Background(), f.fields(nil))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, f.payment(t, 0).Status)
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 1).Status)
	held := 0
	for _, item := range f.orders[1].Items {
		held += item.Quantity
	}
	restored := dbtest.StockOf(t, f.conn, f.products[0].ID) + dbtest.StockOf(t, f.conn, f.products[1].ID)
	assert.Equal(t, 15-held, restored)
}

func TestValidationWithoutTranIDIsRejected(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.Approve("VAL-anon", types.Fields{"amount": "320.00", "value_a": f.correlation()})

	_, err := f.svc.Success(context.Background(), f.fields(map[string]string{"status": "VALID", "val_id": "VAL-anon"}))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeReconcile))
	assert.Equal(t, enums.PaymentStatusPending, f.payment(t, 0).Status)
}

func TestConcurrentFailRestoresStockOnce(t *testing.T) {
	f := newFixture(t, false)
	// without the redis guard only the conditional updates keep this single shot
	f.svc.guard = nil
	fields := f.fields(map[string]string{"status": "FAILED"})

	const deliveries = 8
	outcomes := make(chan Outcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Fail(context.Background(), fields)
			if err != nil {
				t.Errorf("fail callback: %v", err)
				return
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	closed := 0
	for o := range outcomes {
		if o == OutcomeClosed {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
	assert.Equal(t, 10, dbtest.StockOf(t, f.conn, f.products[0].ID))
	assert.Equal(t, 5, dbtest.StockOf(t, f.conn, f.products[1].ID))
	assert.EqualValues(t, 2, f.events(t, enums.EventPaymentFailed))
}
