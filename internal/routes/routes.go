package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/handlers"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/middleware"
	"github.com/veridia/wellguard/internal/ratelimit"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// Deps carries everything route registration needs wired together
type Deps struct {
	AttemptHandler *handlers.AttemptHandler
	ResetHandler   *handlers.ResetHandler
	SessionHandler *handlers.SessionHandler
	AdminHandler   *handlers.AdminHandler

	Resolver *auth.Resolver
	UserRepo auth.UserRoleFetcher
	Limiter  ratelimit.Limiter
	Security config.SecurityConfig
	IPConfig *pkghttp.IPConfig
	Metrics  *metrics.Metrics
}

// RegisterRoutes registers all application routes under /api/v1/security.
// Every endpoint sits behind the per-IP hourly ceiling; sensitive
// mutating endpoints additionally take the strict tier, reads the
// moderate tier. Authenticated endpoints carry a second tier keyed by
// the resolved user, and the public account-targeting endpoints throttle
// per target email inside their handlers, so neither a rotating-IP
// attack on one account nor one account spraying from one address slips
// past a single layer.
func RegisterRoutes(router chi.Router, deps Deps) {
	ipCeiling := middleware.RateLimitTier(deps.Limiter, "ip_hourly", deps.Security.IPHourlyLimit, deps.IPConfig, deps.Metrics)
	strict := middleware.RateLimitTier(deps.Limiter, "strict", deps.Security.StrictLimit, deps.IPConfig, deps.Metrics)
	moderate := middleware.RateLimitTier(deps.Limiter, "moderate", deps.Security.ModerateLimit, deps.IPConfig, deps.Metrics)
	strictUser := middleware.RateLimitPerUser(deps.Limiter, "strict_user", deps.Security.StrictLimit, deps.Metrics)
	moderateUser := middleware.RateLimitPerUser(deps.Limiter, "moderate_user", deps.Security.ModerateLimit, deps.Metrics)

	router.Route("/api/v1/security", func(r chi.Router) {
		r.Use(ipCeiling)

		// Public endpoints
		r.With(strict).Post("/login-attempts", deps.AttemptHandler.Record)
		r.With(strict).Post("/password-reset/request", deps.ResetHandler.RequestReset)
		r.With(moderate).Post("/password-reset/verify", deps.ResetHandler.VerifyToken)
		r.With(strict).Post("/password-reset/complete", deps.ResetHandler.ResetPassword)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity(deps.Resolver))

			r.With(moderate, moderateUser).Get("/sessions", deps.SessionHandler.List)
			r.With(strict, strictUser).Post("/sessions", deps.SessionHandler.Create)
			r.With(strict, strictUser).Delete("/sessions", deps.SessionHandler.Revoke)
			r.With(moderate, moderateUser).Post("/sessions/{sessionID}/touch", deps.SessionHandler.Touch)

			// Operator-only
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(deps.UserRepo, "admin"))
				r.With(strict).Post("/admin/unlock-account", deps.AdminHandler.UnlockAccount)
			})
		})
	})
}
