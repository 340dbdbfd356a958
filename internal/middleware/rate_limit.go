package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/ratelimit"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// RateLimitByIP is a coarse per-IP ceiling applied in front of the
// tiered limiter. It sheds obviously abusive traffic before any
// handler logic runs.
func RateLimitByIP(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteRateLimited(w, time.Now().Add(1*time.Minute))
		}),
	)
}

// RateLimitTier applies a named policy tier from the injected limiter,
// keyed by client IP. Denied requests get a 429 carrying the window
// reset time; a limiter failure fails open rather than blocking logins.
func RateLimitTier(limiter ratelimit.Limiter, tier string, policy config.RateLimitTier, ipCfg *pkghttp.IPConfig, m *metrics.Metrics) func(next http.Handler) http.Handler {
	cfg := ratelimit.Config{
		MaxRequests: policy.MaxRequests,
		Window:      policy.Window,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipCfg)

			result, err := limiter.Check(r.Context(), tier+":"+ip, cfg)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				m.RateLimitDeniedTotal.WithLabelValues(tier).Inc()
				pkghttp.WriteRateLimited(w, result.ResetAt)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitPerUser applies a tier keyed by the resolved identity, so a
// single account cannot dodge throttling by rotating source addresses.
// Mount after RequireIdentity; requests without an identity pass
// through to the auth failure instead of being counted.
func RateLimitPerUser(limiter ratelimit.Limiter, tier string, policy config.RateLimitTier, m *metrics.Metrics) func(next http.Handler) http.Handler {
	cfg := ratelimit.Config{
		MaxRequests: policy.MaxRequests,
		Window:      policy.Window,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.GetIdentityFromContext(r)
			if claims == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Check(r.Context(), tier+":"+claims.UserID, cfg)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				m.RateLimitDeniedTotal.WithLabelValues(tier).Inc()
				pkghttp.WriteRateLimited(w, result.ResetAt)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
