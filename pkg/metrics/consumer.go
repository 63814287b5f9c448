package metrics

import "github.com/prometheus/client_golang/prometheus"

// Consumer outcomes.
const (
	ConsumerHandled   = "handled"
	ConsumerDuplicate = "duplicate"
	ConsumerSkipped   = "skipped"
	ConsumerPoison    = "poison"
	ConsumerRetry     = "retry"
)

// ConsumerMetrics counts Pub/Sub deliveries per consumer and outcome.
type ConsumerMetrics struct {
	messages *prometheus.CounterVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_messages_total",
		Help:      "Domain event deliveries by consumer, event type and outcome.",
	}, []string{"consumer", "event_type", "outcome"})
	reg.MustRegister(messages)
	return &ConsumerMetrics{messages: messages}
}

func (c *ConsumerMetrics) Message(consumer, eventType, outcome string) {
	if c == nil || c.messages == nil {
		return
	}
	c.messages.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
