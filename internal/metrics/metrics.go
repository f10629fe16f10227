// Package metrics records the outcome of a regeneration run and pushes it to a
// Prometheus Pushgateway once the run is over.
package metrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/utafrali/urlrewrite/internal/domain"
)

// JobName groups the pushed series on the Pushgateway.
const JobName = "urlrewrite_regenerate"

// Run outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// RunMetrics holds the run series on its own registry. A batch job owns all
// of its series, so nothing goes to the default registry.
type RunMetrics struct {
	Registry *prometheus.Registry

	Entities    *prometheus.CounterVec
	Rewrites    *prometheus.CounterVec
	Diagnostics prometheus.Counter
	Purged      prometheus.Counter
	Duration    prometheus.Histogram
	LastRun     *prometheus.GaugeVec
}

// New creates the run metrics on a fresh registry.
func New() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		Registry: reg,
		Entities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "urlrewrite",
				Name:      "entities_processed_total",
				Help:      "Total number of catalog entities regenerated",
			},
			[]string{"store_id", "entity_type"},
		),
		Rewrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "urlrewrite",
				Name:      "rewrites_total",
				Help:      "Total number of rewrite rows by result",
			},
			[]string{"store_id", "result"},
		),
		Diagnostics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "urlrewrite",
			Name:      "diagnostics_total",
			Help:      "Total number of diagnostics recorded by the run",
		}),
		Purged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "urlrewrite",
			Name:      "purged_rewrites_total",
			Help:      "Total number of rewrites removed by a purge",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "urlrewrite",
			Name:      "run_duration_seconds",
			Help:      "Duration of regeneration runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		LastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "urlrewrite",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Observe records report. runErr is the error the run ended with, if any; a
// nil report only marks the outcome.
func (m *RunMetrics) Observe(report *domain.RunReport, runErr error) {
	outcome := OutcomeSuccess
	if runErr != nil {
		outcome = OutcomeFailure
	}
	if report == nil {
		m.LastRun.WithLabelValues(outcome).SetToCurrentTime()
		return
	}

	for _, s := range report.Stores {
		store := strconv.FormatInt(s.Store.ID, 10)
		m.Entities.WithLabelValues(store, domain.EntityTypeCategory).Add(float64(s.Stats.Categories))
		m.Entities.WithLabelValues(store, domain.EntityTypeProduct).Add(float64(s.Stats.Products))
		m.Rewrites.WithLabelValues(store, "saved").Add(float64(s.Stats.RewritesSaved))
		m.Rewrites.WithLabelValues(store, "retired").Add(float64(s.Stats.RewritesRetired))
		m.Rewrites.WithLabelValues(store, "renamed").Add(float64(s.Stats.Collisions))
		m.Rewrites.WithLabelValues(store, "failed").Add(float64(s.Stats.Failed))
		m.Diagnostics.Add(float64(s.Stats.Diagnostics.Len()))
	}
	m.Diagnostics.Add(float64(report.Diagnostics.Len()))
	m.Purged.Add(float64(report.Purged))

	if !report.FinishedAt.IsZero() {
		m.Duration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		m.LastRun.WithLabelValues(outcome).Set(float64(report.FinishedAt.Unix()))
	} else {
		m.LastRun.WithLabelValues(outcome).SetToCurrentTime()
	}
}

// Push sends every series of the registry to the Pushgateway at url,
// replacing the previous push of the job.
func (m *RunMetrics) Push(ctx context.Context, url, instance string) error {
	pusher := push.New(url, JobName).Gatherer(m.Registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
