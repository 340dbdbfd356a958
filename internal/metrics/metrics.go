// Package metrics exposes prometheus collectors for the security core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDeniedTotal   *prometheus.CounterVec
	LockoutsCreatedTotal   prometheus.Counter
	LockoutsClearedTotal   *prometheus.CounterVec
	ResetTokensIssuedTotal prometheus.Counter
	ResetTokensUsedTotal   prometheus.Counter
	SessionsCreatedTotal   prometheus.Counter
	SessionsRevokedTotal   *prometheus.CounterVec
	LoginAttemptsTotal     *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on the given registerer; tests pass
// their own registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RateLimitDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wellguard_ratelimit_denied_total",
			Help: "Total number of requests denied by the rate limiter",
		}, []string{"tier"}),
		LockoutsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wellguard_lockouts_created_total",
			Help: "Total number of account lockouts created",
		}),
		LockoutsClearedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wellguard_lockouts_cleared_total",
			Help: "Total number of account lockouts cleared",
		}, []string{"method"}),
		ResetTokensIssuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wellguard_reset_tokens_issued_total",
			Help: "Total number of password reset tokens issued",
		}),
		ResetTokensUsedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wellguard_reset_tokens_used_total",
			Help: "Total number of password reset tokens consumed",
		}),
		SessionsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wellguard_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsRevokedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wellguard_sessions_revoked_total",
			Help: "Total number of sessions revoked",
		}, []string{"scope"}),
		LoginAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wellguard_login_attempts_total",
			Help: "Total number of login attempts recorded",
		}, []string{"outcome"}),
	}
}
