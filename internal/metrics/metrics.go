// Package metrics exposes Prometheus instrumentation for the auth flow:
// login outcomes, edge-gate redirects, and client-side forced logouts.
// Everything registers against a caller-supplied registry so tests can
// use an isolated one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles the auth-flow metrics. Created once at composition time and
// passed to the components that record into it.
type Set struct {
	// LoginAttempts counts login requests by outcome: "success",
	// "invalid_credentials", "error".
	LoginAttempts *prometheus.CounterVec

	// EdgeRedirects counts edge-gate redirects by reason: "login_with_token",
	// "missing_token".
	EdgeRedirects *prometheus.CounterVec

	// ForcedLogouts counts 401-triggered logouts observed by the client core.
	ForcedLogouts prometheus.Counter

	// SessionsRevoked counts explicit server-side session revocations.
	SessionsRevoked prometheus.Counter
}

// New creates the metric set on the given registry. Pass
// prometheus.DefaultRegisterer for the real server.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)

	return &Set{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "login_attempts_total",
			Help:      "Login requests by outcome",
		}, []string{"outcome"}),

		EdgeRedirects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "edge_redirects_total",
			Help:      "Edge-gate redirects by reason",
		}, []string{"reason"}),

		ForcedLogouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "forced_logouts_total",
			Help:      "Logouts forced by a 401 on an authenticated request",
		}),

		SessionsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gatehouse",
			Name:      "sessions_revoked_total",
			Help:      "Server-side session revocations",
		}),
	}
}
