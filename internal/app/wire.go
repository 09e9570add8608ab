package app

import (
	"log/slog"

	"github.com/attaboy/warden/internal/auth"
	"github.com/attaboy/warden/internal/guard"
	"github.com/attaboy/warden/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Reader      handler.PunishmentReader
	DB          handler.Pinger
	JWTMgr      *auth.JWTManager
	RateLimiter *guard.RateLimiter
	CORSOrigins string
	Logger      *slog.Logger
}

// NewRouter assembles the reporting API. Every /api route is read-only.
func NewRouter(deps RouterDeps) chi.Router {
	punishments := handler.NewPunishmentHandler(deps.Reader)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(deps.Logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(deps.Logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Get("/health", handler.HealthHandler(deps.DB))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(handler.CORSWithOrigins(deps.CORSOrigins))
		r.Use(handler.JSONContentType)
		r.Use(auth.AuthenticateReporter(deps.JWTMgr))
		if deps.RateLimiter != nil {
			r.Use(handler.RateLimit(deps.RateLimiter, auth.SubjectFromContext))
		}

		r.Route("/punishments", func(r chi.Router) {
			r.Get("/recent", punishments.Recent)
			r.Get("/{id}", punishments.Get)
		})
		r.Get("/players/{name}/history", punishments.History)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.ModeratorRoles()...))
			r.Get("/appeals/pending", punishments.PendingAppeals)
		})
	})

	return r
}
