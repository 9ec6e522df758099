package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/internal/orders"
	"github.com/angelmondragon/agromarket-backend/internal/payments"
	"github.com/angelmondragon/agromarket-backend/internal/stock"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/logger"
	"github.com/angelmondragon/agromarket-backend/pkg/metrics"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox"
	"github.com/angelmondragon/agromarket-backend/pkg/outbox/payloads"
)

const (
	defaultPendingTimeout = 45 * time.Minute
	defaultSweepBatch     = 100
	expiredNote           = "payment session expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentSweepJobParams configure the abandoned payment sweep.
type PaymentSweepJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Payments payments.Repository
	Orders   orders.Repository
	Stock    stock.Restorer
	Outbox   outboxEmitter
	Metrics  *metrics.PaymentMetrics
	Timeout  time.Duration
	Batch    int
}

// NewPaymentSweepJob builds the job that expires payments nobody completed.
// Each expiry cancels the order and gives its stock back.
func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPendingTimeout
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &paymentSweepJob{
		logg:     params.Logger,
		db:       params.DB,
		payments: params.Payments,
		orders:   params.Orders,
		stock:    params.Stock,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		timeout:  timeout,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentSweepJob struct {
	logg     *logger.Logger
	db       txRunner
	payments payments.Repository
	orders   orders.Repository
	stock    stock.Restorer
	outbox   outboxEmitter
	metrics  *metrics.PaymentMetrics
	timeout  time.Duration
	batch    int
	now      func() time.Time
}

func (j *paymentSweepJob) Name() string { return "payment-sweep" }

func (j *paymentSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.timeout)
	stale, err := j.payments.FindStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale payments: %w", err)
	}

	var errs error
	expired := 0
	for i := range stale {
		ok, err := j.expire(ctx, &stale[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", stale[i].TranID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	j.metrics.AddExpired(expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(stale),
		"expired": expired,
	})
	j.logg.Info(logCtx, "payment sweep complete")
	return errs
}

func (j *paymentSweepJob) expire(ctx context.Context, payment *models.Payment) (bool, error) {
	transition := payments.Next(payment.Status, payments.EventExpired)
	if !transition.Changed() {
		return false, nil
	}
	order := payment.Order
	now := j.now().UTC()
	if order == nil || order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.OrderPaymentUnpaid {
		// the order already moved on; close the payment alone so it leaves the batch
		if _, err := j.payments.MarkClosed(ctx, payment.ID, transition.To, nil, now); err != nil {
			return false, err
		}
		j.logg.Warn(j.logg.WithTransactionID(ctx, payment.TranID), "stale payment without a pending order, closed without touching stock")
		return false, nil
	}

	expired := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := j.payments.WithTx(tx).MarkClosed(ctx, payment.ID, transition.To, nil, now)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if transition.Has(payments.EffectCancelOrders) {
			if _, err := j.orders.WithTx(tx).MarkCancelled(ctx, order, false, expiredNote, now); err != nil {
				return err
			}
		}
		if transition.Has(payments.EffectRestoreStock) {
			if _, err := j.stock.RestoreOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}
		expired = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.SystemActor,
			OccurredAt:    now,
			Data: payloads.OrderExpiredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				TranID:      payment.TranID,
				UID:         payment.UID,
				ExpiredAt:   now,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}
