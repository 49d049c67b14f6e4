// Package metrics exposes Prometheus counters for the authentication flows.
// A nil *Metrics is valid and counts nothing, mirroring the audit
// dispatcher, so wiring metrics stays optional.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared across counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeConflict    = "conflict"
	OutcomeInvalid     = "invalid"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	logins             *prometheus.CounterVec
	mfaVerifications   *prometheus.CounterVec
	refreshes          *prometheus.CounterVec
	sessionRevocations *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
	introspections     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_logins_total",
		Help: "Password login attempts by outcome.",
	}, []string{"outcome"})
	m.mfaVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_mfa_verifications_total",
		Help: "MFA code verifications by outcome.",
	}, []string{"outcome"})
	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_refreshes_total",
		Help: "Refresh token rotations by outcome.",
	}, []string{"outcome"})
	m.sessionRevocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_session_revocations_total",
		Help: "Session revocations by reason.",
	}, []string{"reason"})
	m.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authd_rate_limit_hits_total",
		Help: "Requests rejected by a rate limit, by policy prefix.",
	}, []string{"policy"})
	m.introspections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authd_introspections_total",
		Help: "Token introspection requests.",
	})

	m.registry.MustRegister(
		m.logins,
		m.mfaVerifications,
		m.refreshes,
		m.sessionRevocations,
		m.rateLimitHits,
		m.introspections,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MFAVerification(outcome string) {
	if m == nil {
		return
	}
	m.mfaVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionRevoked(reason string) {
	if m == nil {
		return
	}
	m.sessionRevocations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RateLimitHit(policy string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(policy).Inc()
}

func (m *Metrics) Introspection() {
	if m == nil {
		return
	}
	m.introspections.Inc()
}
