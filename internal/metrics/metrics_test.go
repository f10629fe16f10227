package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/urlrewrite/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func sampleReport() *domain.RunReport {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	report := &domain.RunReport{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Purged:     7,
		Stores: []domain.StoreReport{
			{
				Store: domain.Store{ID: 1, Code: "default"},
				Stats: domain.RunStats{Categories: 3, Products: 10, RewritesSaved: 25, Collisions: 2, Failed: 1},
			},
		},
	}
	report.Stores[0].Stats.Diagnostics.Addf("product 4: failed")
	report.Diagnostics.Addf("reindex: broker unavailable")
	return report
}

func TestRunMetrics_Observe(t *testing.T) {
	m := New()
	m.Observe(sampleReport(), nil)

	assert.Equal(t, 3.0, counterValue(t, m.Entities.WithLabelValues("1", domain.EntityTypeCategory)))
	assert.Equal(t, 10.0, counterValue(t, m.Entities.WithLabelValues("1", domain.EntityTypeProduct)))
	assert.Equal(t, 25.0, counterValue(t, m.Rewrites.WithLabelValues("1", "saved")))
	assert.Equal(t, 2.0, counterValue(t, m.Rewrites.WithLabelValues("1", "renamed")))
	assert.Equal(t, 1.0, counterValue(t, m.Rewrites.WithLabelValues("1", "failed")))
	assert.Equal(t, 2.0, counterValue(t, m.Diagnostics))
	assert.Equal(t, 7.0, counterValue(t, m.Purged))
	assert.Equal(t, float64(sampleReport().FinishedAt.Unix()), gaugeValue(t, m.LastRun.WithLabelValues(OutcomeSuccess)))
}

func TestRunMetrics_ObserveFailureWithoutReport(t *testing.T) {
	m := New()
	m.Observe(nil, errors.New("lock held"))

	assert.Greater(t, gaugeValue(t, m.LastRun.WithLabelValues(OutcomeFailure)), 0.0)
	assert.Zero(t, counterValue(t, m.Purged))
}

func TestRunMetrics_Push(t *testing.T) {
	var (
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.Observe(sampleReport(), nil)

	require.NoError(t, m.Push(context.Background(), srv.URL, "host-a"))
	assert.Equal(t, "/metrics/job/"+JobName+"/instance/host-a", gotPath)
	assert.True(t, strings.Contains(gotBody, "urlrewrite_rewrites_total"))
}

func TestRunMetrics_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
