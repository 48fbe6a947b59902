// Package metrics exposes the arena's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arena"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	suspicious          *prometheus.CounterVec
	rateLimitDecisions  *prometheus.CounterVec
	rateLimitFailOpen   *prometheus.CounterVec
	leaderboardFallback *prometheus.CounterVec
	cacheWriteFailures  prometheus.Counter
	sessions            *prometheus.CounterVec
	jobs                *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	deadLetters         *prometheus.CounterVec
	eventFailures       *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New registers collectors on a fresh registry, including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry registers collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		suspicious: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_total",
			Help:      "Suspicious activity observed, by reason",
		}, []string{"reason"}),
		rateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter decisions by scope and outcome",
		}, []string{"scope", "outcome"}),
		rateLimitFailOpen: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_fail_open_total",
			Help:      "Requests admitted because the rate limit cache was unreachable",
		}, []string{"scope"}),
		leaderboardFallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_fallback_total",
			Help:      "Leaderboard reads served from the profile store",
		}, []string{"scope_kind", "reason"}),
		cacheWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_cache_write_failures_total",
			Help:      "Leaderboard cache writes that failed and were swallowed",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_processed_total",
			Help:      "Accepted sessions by reward branch",
		}, []string{"branch"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Job attempts by job name and outcome",
		}, []string{"job", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job attempt duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		deadLetters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_letter_total",
			Help:      "Jobs moved to the dead-letter list after exhausting retries",
		}, []string{"job"}),
		eventFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler errors and panics swallowed by the bus",
		}, []string{"event"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route and status code",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Suspicious counts a suspicious event such as "rate_limit_game_submit_exceeded".
func (m *Metrics) Suspicious(reason string) {
	if m == nil {
		return
	}
	m.suspicious.WithLabelValues(reason).Inc()
}

// RateLimitDecision counts an allow/deny decision.
func (m *Metrics) RateLimitDecision(scope string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.rateLimitDecisions.WithLabelValues(scope, outcome).Inc()
}

// RateLimitFailOpen counts a request admitted without a check.
func (m *Metrics) RateLimitFailOpen(scope string) {
	if m == nil {
		return
	}
	m.rateLimitFailOpen.WithLabelValues(scope).Inc()
}

// LeaderboardFallback counts a read served by the profile store.
func (m *Metrics) LeaderboardFallback(scopeKind, reason string) {
	if m == nil {
		return
	}
	m.leaderboardFallback.WithLabelValues(scopeKind, reason).Inc()
}

// CacheWriteFailure counts a swallowed leaderboard write error.
func (m *Metrics) CacheWriteFailure() {
	if m == nil {
		return
	}
	m.cacheWriteFailures.Inc()
}

// SessionProcessed counts an accepted session by reward branch.
func (m *Metrics) SessionProcessed(branch string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(branch).Inc()
}

// JobAttempt records one job attempt.
func (m *Metrics) JobAttempt(job, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}

// DeadLetter counts a job that exhausted its retries.
func (m *Metrics) DeadLetter(job string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(job).Inc()
}

// EventHandlerFailure counts a swallowed handler error or panic.
func (m *Metrics) EventHandlerFailure(eventType string) {
	if m == nil {
		return
	}
	m.eventFailures.WithLabelValues(eventType).Inc()
}

// HTTPRequest observes one API request. route is the mux template, not the raw path.
func (m *Metrics) HTTPRequest(route, method string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(seconds)
}
