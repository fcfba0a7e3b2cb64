package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/PhilHem/gamepanel/backend/handlers"
	"github.com/PhilHem/gamepanel/backend/middleware"
)

type Deps struct {
	Handler *handlers.Handler
	Guard   *middleware.Guard
	CSRF    *middleware.CSRFProtection

	// Limits backs every rate limiter. Nil means one in-memory store.
	Limits   middleware.LimitStore
	Attempts int
	Window   time.Duration

	Production bool
}

// prefixed namespaces a limiter key so limiters sharing a store stay apart.
func prefixed(name string, fn middleware.KeyFunc) middleware.KeyFunc {
	return func(r *http.Request) string {
		return name + ":" + fn(r)
	}
}

// NewRouter wires every route of the panel.
func NewRouter(d Deps) http.Handler {
	if d.Limits == nil {
		d.Limits = middleware.NewMemoryLimitStore(d.Window)
	}
	h := d.Handler

	loginLimiter := middleware.NewRateLimiter(d.Attempts, d.Window,
		middleware.WithStore(d.Limits),
		middleware.WithKeyFunc(prefixed("login", middleware.LoginKey)),
		middleware.WithResetOnSuccess())
	registerLimiter := middleware.NewRateLimiter(d.Attempts, d.Window,
		middleware.WithStore(d.Limits),
		middleware.WithKeyFunc(prefixed("register", middleware.IPKey)))
	challengeLimiter := middleware.NewRateLimiter(d.Attempts, d.Window,
		middleware.WithStore(d.Limits),
		middleware.WithKeyFunc(prefixed("2fa", middleware.IPKey)),
		middleware.WithErrorField("code"))

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(d.Production))
	r.Use(d.CSRF.Protect)

	// Health check (unauthenticated, for load balancers)
	r.Get("/health", h.Health)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	r.Get("/login", h.LoginPage)
	r.With(loginLimiter.Limit).Post("/login", h.Login)
	r.Get("/register", h.RegisterPage)
	r.With(registerLimiter.Limit).Post("/register", h.Register)
	r.Post("/logout", h.Logout)

	r.Get("/two-factor-challenge", h.ChallengePage)
	r.With(challengeLimiter.Limit).Post("/two-factor-challenge", h.Challenge)

	r.Group(func(r chi.Router) {
		r.Use(d.Guard.RequireAuth)
		r.Use(d.Guard.RequireTwoFactor)

		r.Get("/dashboard", h.Dashboard)

		r.Route("/profile/2fa", func(r chi.Router) {
			r.Get("/setup", h.TwoFactorSetup)
			r.Post("/enable", h.TwoFactorEnable)
			r.Post("/disable", h.TwoFactorDisable)
		})

		r.Route("/admin/api", func(r chi.Router) {
			r.Use(d.Guard.RequireAdmin)

			r.Get("/logs", h.GetLogs)
			r.Delete("/logs", h.DeleteLogs)
			r.Get("/logs/sources", h.GetLogSources)
			r.Get("/logs/timeline", h.GetLogTimeline)
			r.Get("/security/two-factor", h.TwoFactorStats)
		})
	})

	return r
}
