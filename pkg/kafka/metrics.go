package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProducerMetrics counts publish outcomes per topic.
type ProducerMetrics struct {
	Published *prometheus.CounterVec
	Errors    *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
}

// NewProducerMetrics creates the producer metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewProducerMetrics(reg prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_producer_messages_published_total",
				Help: "Total number of Kafka messages published",
			},
			[]string{"topic"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_producer_publish_errors_total",
				Help: "Total number of Kafka publish errors",
			},
			[]string{"topic"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kafka_producer_publish_duration_seconds",
				Help:    "Duration of Kafka publish operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Published, m.Errors, m.Duration)
	}
	return m
}
