package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts relay outcomes per event type.
type OutboxMetrics struct {
	relayed *prometheus.CounterVec
	batches prometheus.Histogram
}

// NewOutboxMetrics registers the relay metrics. A nil registerer yields a
// no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_relay_events_total",
		Help:      "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_relay_batch_size",
		Help:      "Rows claimed per relay batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(relayed, batches)
	return &OutboxMetrics{relayed: relayed, batches: batches}
}

func (o *OutboxMetrics) Relayed(eventType, outcome string) {
	if o == nil || o.relayed == nil {
		return
	}
	o.relayed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (o *OutboxMetrics) Batch(size int) {
	if o == nil || o.batches == nil {
		return
	}
	o.batches.Observe(float64(size))
}
