package vpnshop

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/vpn-shop/internal/config"
	"github.com/magabrotheeeer/vpn-shop/internal/http/handlers/admin/login"
	"github.com/magabrotheeeer/vpn-shop/internal/http/handlers/admin/sweep"
	"github.com/magabrotheeeer/vpn-shop/internal/http/handlers/admin/transactions"
	"github.com/magabrotheeeer/vpn-shop/internal/http/handlers/admin/users"
	"github.com/magabrotheeeer/vpn-shop/internal/http/handlers/health"
	"github.com/magabrotheeeer/vpn-shop/internal/http/middlewarectx"
)

// Engine — операции движка, доступные из админ-консоли.
type Engine interface {
	transactions.Approver
	transactions.Rejecter
}

// Deps — зависимости маршрутов админ-консоли.
type Deps struct {
	Auth interface {
		login.Service
		middlewarectx.TokenValidator
	}
	Engine  Engine
	Ledger  transactions.Lister
	Users   users.Service
	Sweeper sweep.Runner
	DB      health.Pinger
}

// RegisterRoutes регистрирует маршруты админ-консоли.
func RegisterRoutes(r chi.Router, log *slog.Logger, cfg config.HTTPServer, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/admin/login", login.New(log, deps.Auth).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.Auth, log))
			r.Use(middlewarectx.RateLimitMiddleware(log, cfg.RateLimit, cfg.RateBurst))
			r.Get("/admin/transactions", transactions.NewList(log, deps.Ledger).ServeHTTP)
			r.Post("/admin/transactions/{id}/approve", transactions.NewApprove(log, deps.Engine).ServeHTTP)
			r.Post("/admin/transactions/{id}/reject", transactions.NewReject(log, deps.Engine).ServeHTTP)
			r.Post("/admin/sweep", sweep.New(log, deps.Sweeper).ServeHTTP)
			r.Post("/admin/users/{id}/ban", users.NewBan(log, deps.Users).ServeHTTP)
			r.Post("/admin/users/{id}/unban", users.NewUnban(log, deps.Users).ServeHTTP)
		})
	})

	r.Get("/health", health.New(log, deps.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
}
