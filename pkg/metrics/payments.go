package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "componentry"

// PaymentMetrics tracks the order, verification and webhook funnel.
type PaymentMetrics struct {
	orders        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_orders_created_total",
		Help:      "Gateway orders created, by purpose and gateway.",
	}, []string{"purpose", "gateway"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_verifications_total",
		Help:      "Payment verification attempts, by outcome.",
	}, []string{"purpose", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhook_events_total",
		Help:      "Gateway webhook deliveries, by provider, event and outcome.",
	}, []string{"provider", "event", "outcome"})
	reg.MustRegister(orders, verifications, webhooks)
	return &PaymentMetrics{orders: orders, verifications: verifications, webhooks: webhooks}
}

func (p *PaymentMetrics) OrderCreated(purpose, gateway string) {
	if p == nil || p.orders == nil {
		return
	}
	p.orders.WithLabelValues(normalizeLabel(purpose), normalizeLabel(gateway)).Inc()
}

func (p *PaymentMetrics) Verification(purpose, outcome string) {
	if p == nil || p.verifications == nil {
		return
	}
	p.verifications.WithLabelValues(normalizeLabel(purpose), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) Webhook(provider, event, outcome string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
