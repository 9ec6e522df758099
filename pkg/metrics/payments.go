package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics covers the checkout to settlement pipeline.
type PaymentMetrics struct {
	checkouts *prometheus.CounterVec
	callbacks *prometheus.CounterVec
	gateway   *prometheus.HistogramVec
	sweeps    prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on reg. A nil registerer
// yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromarket_checkout_total",
		Help: "Checkout initiations by result.",
	}, []string{"result"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agromarket_payment_callbacks_total",
		Help: "Gateway callbacks processed by channel and outcome.",
	}, []string{"channel", "outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agromarket_gateway_request_duration_seconds",
		Help:    "Latency of outbound payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})
	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agromarket_payments_expired_total",
		Help: "Pending payments expired by the reconciliation sweep.",
	})
	reg.MustRegister(checkouts, callbacks, gateway, sweeps)
	return &PaymentMetrics{
		checkouts: checkouts,
		callbacks: callbacks,
		gateway:   gateway,
		sweeps:    sweeps,
	}
}

// IncCheckout counts one checkout attempt ending in result.
func (p *PaymentMetrics) IncCheckout(result string) {
	if p == nil || p.checkouts == nil {
		return
	}
	p.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncCallback counts one callback on channel ending in outcome.
func (p *PaymentMetrics) IncCallback(channel, outcome string) {
	if p == nil || p.callbacks == nil {
		return
	}
	p.callbacks.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

// ObserveGateway records the latency of one outbound gateway call.
func (p *PaymentMetrics) ObserveGateway(operation string, err error, took time.Duration) {
	if p == nil || p.gateway == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.gateway.WithLabelValues(normalizeLabel(operation), result).Observe(took.Seconds())
}

// AddExpired counts payments moved out of PENDING by the sweep.
func (p *PaymentMetrics) AddExpired(n int) {
	if p == nil || p.sweeps == nil || n <= 0 {
		return
	}
	p.sweeps.Add(float64(n))
}
