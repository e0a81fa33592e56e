// Package metrics exposes Prometheus counters for the authentication flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters recorded by the services.
type Metrics struct {
	NoncesIssued     prometheus.Counter
	SignIns          *prometheus.CounterVec // by result: issued, malformed, <verification reason>, replay, storage, error
	HandlesAssigned  prometheus.Counter
	SessionReads     *prometheus.CounterVec // by outcome
	RateLimitedCalls prometheus.Counter
}

// New registers the counters with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NoncesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "walletauth_nonces_issued_total",
			Help: "Total number of sign-in nonces issued.",
		}),
		SignIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_signins_total",
			Help: "Total number of sign-in attempts, by result.",
		}, []string{"result"}),
		HandlesAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "walletauth_handles_assigned_total",
			Help: "Total number of handles assigned to accounts.",
		}),
		SessionReads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_session_reads_total",
			Help: "Total number of session token reads, by outcome.",
		}, []string{"outcome"}),
		RateLimitedCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "walletauth_rate_limited_total",
			Help: "Total number of requests rejected by the sign-in rate limit.",
		}),
	}
}
