package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-core/internal/config"
	"go-auth-core/internal/handler"
	"go-auth-core/internal/limiter"
	"go-auth-core/internal/metrics"
	"go-auth-core/internal/middleware"
)

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	loginWindow *limiter.FixedWindow,
	m *metrics.Metrics,
	health http.HandlerFunc,
) http.Handler {
	r := chi.NewRouter()
	throttle := middleware.NewThrottle(cfg.RateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(throttle.Handler)

	r.Get("/health", health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			loginLimit := middleware.RateLimit(loginWindow, m)

			auth.With(loginLimit).Post("/register", authHandler.Register)
			auth.With(loginLimit).Post("/login", authHandler.Login)
			auth.Post("/refresh", authHandler.Refresh)
			auth.With(authMiddleware.RequireAuth).Post("/logout", authHandler.Logout)
			auth.With(authMiddleware.RequireAuth).Post("/logout_all", authHandler.LogoutAll)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})
	})

	return r
}
