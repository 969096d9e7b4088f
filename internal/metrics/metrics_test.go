package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficpilot/internal/models"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := New()

	m.SessionStarted(models.TargetWebsite)
	m.SessionStarted(models.TargetVideoPlatform)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsActive))

	m.SessionFinished(models.TargetWebsite, models.StatusCompleted, 3*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsStarted.WithLabelValues("website")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsFinished.WithLabelValues("website", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionDuration))
}

func TestMetrics_UnknownTargetsShareOneLabel(t *testing.T) {
	m := New()

	m.SessionStarted(models.Target("tiktok"))
	m.SessionStarted(models.Target("myspace"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsStarted.WithLabelValues("unknown")))
}

func TestMetrics_BestEffortAndScroll(t *testing.T) {
	m := New()

	m.BestEffortFailed("like")
	m.BestEffortFailed("like")
	m.Scrolled(450)
	m.StartRejected("rate_limited")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bestEffortFailures.WithLabelValues("like")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.scrollDistance))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.startsRejected.WithLabelValues("rate_limited")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted(models.TargetWebsite)
		m.SessionFinished(models.TargetWebsite, models.StatusError, time.Second)
		m.BestEffortFailed("channel")
		m.Scrolled(100)
		m.StartRejected("limit")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SessionStarted(models.TargetWebsite)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `trafficpilot_sessions_started_total{target="website"} 1`))
}
