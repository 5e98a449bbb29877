package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the split-payment service.
type Metrics struct {
	// Checkout metrics
	CheckoutsTotal    *prometheus.CounterVec
	CheckoutDuration  *prometheus.HistogramVec
	CardsPerCheckout  prometheus.Histogram
	AuthorizeDuration prometheus.Histogram
	CaptureDuration   prometheus.Histogram

	// Payment phase outcomes
	PaymentsTotal *prometheus.CounterVec

	// The invariant-violation alarm: a capture fan-out left some cards
	// charged while compensation on the rest failed.
	PartialCaptureAnomalies prometheus.Counter

	// Refund metrics
	RefundsTotal      *prometheus.CounterVec
	RefundAmountTotal prometheus.Counter

	// Order submission metrics
	OrderSubmissionsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhooksTotal          *prometheus.CounterVec
	WebhooksSwallowedTotal *prometheus.CounterVec

	// Provider call metrics
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		CheckoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_checkouts_total",
				Help: "Completed checkout attempts by outcome",
			},
			[]string{"outcome"},
		),
		CheckoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitpay_checkout_duration_seconds",
				Help:    "End-to-end complete-checkout latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		CardsPerCheckout: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "splitpay_cards_per_checkout",
				Help:    "Number of cards in completed checkouts",
				Buckets: []float64{2, 3, 4, 5},
			},
		),
		AuthorizeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "splitpay_authorize_phase_seconds",
				Help:    "Duration of the parallel authorization fan-out",
				Buckets: prometheus.DefBuckets,
			},
		),
		CaptureDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "splitpay_capture_phase_seconds",
				Help:    "Duration of the capture fan-out",
				Buckets: prometheus.DefBuckets,
			},
		),
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_payments_total",
				Help: "Per-card payment operations by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		PartialCaptureAnomalies: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "splitpay_partial_capture_anomalies_total",
				Help: "Capture fan-outs that left a mixed captured/uncaptured state",
			},
		),
		RefundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_refunds_total",
				Help: "Refund rows by final status",
			},
			[]string{"status"},
		),
		RefundAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "splitpay_refund_amount_cents_total",
				Help: "Total cents successfully refunded",
			},
		),
		OrderSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_order_submissions_total",
				Help: "Platform order submissions by outcome",
			},
			[]string{"outcome"},
		),
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_webhooks_total",
				Help: "Webhook events by source, type, and outcome",
			},
			[]string{"source", "event", "outcome"},
		),
		WebhooksSwallowedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_webhooks_swallowed_total",
				Help: "Webhook processing errors acknowledged with 200 to stop provider retries",
			},
			[]string{"source"},
		),
		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitpay_provider_calls_total",
				Help: "Outbound provider API calls by service, operation, and outcome",
			},
			[]string{"service", "operation", "outcome"},
		),
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitpay_provider_call_duration_seconds",
				Help:    "Outbound provider API call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
	}
}

// ObserveProviderCall records one outbound call.
func (m *Metrics) ObserveProviderCall(service, operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCallsTotal.WithLabelValues(service, operation, outcome).Inc()
	m.ProviderCallDuration.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
}
