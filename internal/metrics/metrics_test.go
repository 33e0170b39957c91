package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IngestRecord("ai_generated", OutcomeInserted)
	m.IngestRecord("ai_generated", OutcomeInserted)
	m.IngestRecord("curated", OutcomeSuppressed)
	m.Check(CheckHealthy, 100)
	m.Check(CheckError, 0)
	m.ReviewTransition("approved")
	m.SetPublishable(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestRecords.WithLabelValues("ai_generated", OutcomeInserted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestRecords.WithLabelValues("curated", OutcomeSuppressed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationChecks.WithLabelValues(CheckError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reviewTransitions.WithLabelValues("approved")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.publishableEvents))
	assert.Equal(t, 1, testutil.CollectAndCount(m.linkHealthScore))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IngestRecord("ai_generated", OutcomeInserted)
		m.Check(CheckHealthy, 100)
		m.SetPublishable(1)
		m.ReviewTransition("approved")
		m.ObserveRun("validation", time.Now())
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRun("validation", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tax_events_run_duration_seconds"))
}
