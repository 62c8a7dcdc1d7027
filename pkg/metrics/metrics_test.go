package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(OutcomeConverged, 4, 2*time.Millisecond)
	m.Observe(OutcomeConverged, 3, time.Millisecond)
	m.Observe(OutcomeInvalid, 0, time.Microsecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Corrections.WithLabelValues(OutcomeConverged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Corrections.WithLabelValues(OutcomeInvalid)))
	// The histogram is a single metric; zero-iteration outcomes are not observed.
	assert.Equal(t, 1, testutil.CollectAndCount(m.Iterations))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "lcqe_correction_iterations_count 2")
	assert.Contains(t, rec.Body.String(), "lcqe_correction_duration_seconds_count 3")
}

func TestNilMetricsIgnored(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe(OutcomeConverged, 1, time.Second) })
}

func TestHandler(t *testing.T) {
	m := New()
	m.Sessions.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lcqe_sessions 3")
}
