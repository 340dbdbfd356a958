package handlers

import (
	"net/http"

	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/ratelimit"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// AccountLimiter throttles per target account, in series with the
// network-origin tiers applied at the router. Keying by the normalized
// email catches a distributed attack on one account that per-IP tiers
// never see.
type AccountLimiter struct {
	limiter ratelimit.Limiter
	cfg     ratelimit.Config
	tier    string
	metrics *metrics.Metrics
}

// NewAccountLimiter creates an AccountLimiter for the named tier
func NewAccountLimiter(limiter ratelimit.Limiter, tier string, policy config.RateLimitTier, m *metrics.Metrics) *AccountLimiter {
	return &AccountLimiter{
		limiter: limiter,
		cfg: ratelimit.Config{
			MaxRequests: policy.MaxRequests,
			Window:      policy.Window,
		},
		tier:    tier,
		metrics: m,
	}
}

// allow checks the account key and writes the 429 on denial. A nil
// AccountLimiter or a limiter failure imposes no throttle: logins must
// not break when the counter does.
func (l *AccountLimiter) allow(w http.ResponseWriter, r *http.Request, key string) bool {
	if l == nil {
		return true
	}

	result, err := l.limiter.Check(r.Context(), l.tier+":"+key, l.cfg)
	if err != nil {
		return true
	}

	if !result.Allowed {
		l.metrics.RateLimitDeniedTotal.WithLabelValues(l.tier).Inc()
		pkghttp.WriteRateLimited(w, result.ResetAt)
		return false
	}
	return true
}
