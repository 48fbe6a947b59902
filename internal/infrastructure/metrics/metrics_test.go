package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.Suspicious("rate_limit_game_submit_exceeded")
	m.Suspicious("rate_limit_game_submit_exceeded")
	m.RateLimitDecision("api", false)
	m.DeadLetter("process-game-result")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.suspicious.WithLabelValues("rate_limit_game_submit_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitDecisions.WithLabelValues("api", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLetters.WithLabelValues("process-game-result")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Suspicious("x")
		m.JobAttempt("j", "ok", 0.1)
		m.LeaderboardFallback("global", "cache_error")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.SessionProcessed("new")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `arena_sessions_processed_total{branch="new"} 1`)
}
