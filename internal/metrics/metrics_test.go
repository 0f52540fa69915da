package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingmon/internal/storage/models"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	v := 42.0

	m.ObserveLine(&v, models.StatusFast)
	m.ObserveLine(nil, models.StatusDown)
	m.ObserveLine(nil, models.StatusDown)
	m.SessionStarted()
	m.LaunchFailed()
	m.PersistFailed("snapshot")
	m.SetDevices(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.probeLines.WithLabelValues("FAST")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.probeLines.WithLabelValues("DOWN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probeActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.launchFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saveFailures.WithLabelValues("snapshot")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.devices))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))

	m.SessionEnded()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.probeActive))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLine(nil, models.StatusDown)
		m.SessionStarted()
		m.SessionEnded()
		m.LaunchFailed()
		m.PersistFailed("history")
		m.SetDevices(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetDevices(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "pingmon_registry_devices 3"), body)
}
