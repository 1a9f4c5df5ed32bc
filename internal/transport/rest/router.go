package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/scriptdeck/api"
	"github.com/frahmantamala/scriptdeck/internal/auth"
	"github.com/frahmantamala/scriptdeck/internal/execution"
	"github.com/frahmantamala/scriptdeck/internal/gate"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/role"
	"github.com/frahmantamala/scriptdeck/internal/transport/middleware"
	"github.com/frahmantamala/scriptdeck/internal/transport/swagger"
	"github.com/frahmantamala/scriptdeck/internal/user"
)

type Handlers struct {
	Auth      *auth.Handler
	User      *user.Handler
	Gate      *gate.Handler
	Module    *module.Handler
	Role      *role.Handler
	Execution *execution.Handler
}

type Options struct {
	AllowedOrigins string
	DBComponent    string
	MetricsPath    string
	Metrics        http.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, opts Options, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, opts.DBComponent)

	// Apply global middleware
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.RecoveryMiddleware)
	router.Use(middleware.LoggingMiddleware)

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec)
	})
	router.Handle("/swagger/*", swagger.Handler())

	if opts.Metrics != nil && opts.MetricsPath != "" {
		router.Handle(opts.MetricsPath, opts.Metrics)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
		})

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/users/me", h.User.GetCurrentUser)
			h.Gate.MountRoutes(pr)

			pr.Route("/admin", func(ar chi.Router) {
				ar.Use(h.Auth.RequireAdmin)

				ar.Route("/roles", func(rr chi.Router) {
					rr.Get("/", h.Role.ListRoles)
					rr.Post("/", h.Role.CreateRole)
					rr.Get("/{id}", h.Role.GetRole)
					rr.Put("/{id}", h.Role.UpdateRole)
					rr.Delete("/{id}", h.Role.DeleteRole)
					rr.Post("/{id}/permissions", h.Role.GrantPermission)
					rr.Delete("/{id}/permissions/{moduleId}", h.Role.RevokePermission)
				})

				ar.Route("/modules", func(mr chi.Router) {
					mr.Get("/", h.Module.ListModules)
					mr.Post("/", h.Module.CreateModule)
					mr.Get("/{id}", h.Module.GetModule)
					mr.Put("/{id}", h.Module.UpdateModule)
					mr.Delete("/{id}", h.Module.DeleteModule)
				})

				ar.Get("/users", h.User.ListUsers)
				ar.Post("/users", h.User.CreateUser)
				ar.Put("/users/{id}/role", h.User.ChangeRole)

				ar.Get("/executions", h.Execution.ListExecutions)
			})
		})
	})
}
