package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/org-control-plane/app"
	"github.com/upb/org-control-plane/handlers"
	"github.com/upb/org-control-plane/middleware"
	"github.com/upb/org-control-plane/utils"
)

const defaultRequestTimeout = 60 * time.Second

var defaultAllowedOrigins = []string{"http://localhost:*", "https://*"}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	timeout := defaultRequestTimeout
	origins := defaultAllowedOrigins
	metricsEnabled := false
	if cfg := deps.Config; cfg != nil {
		if cfg.Server.RequestTimeout > 0 {
			timeout = cfg.Server.RequestTimeout
		}
		if len(cfg.Server.AllowedOrigins) > 0 {
			origins = cfg.Server.AllowedOrigins
		}
		metricsEnabled = cfg.Observability.MetricsEnabled
	}

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Timeout(timeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	var store handlers.Pinger
	if deps.Store != nil {
		store = deps.Store
	}
	health := handlers.NewHealthHandler(store, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/org", func(r chi.Router) {
		orgs := handlers.NewOrganizationHandler(deps.Organizations, deps.Logger)
		r.Post("/create", orgs.HandleCreate)
		r.Get("/get", orgs.HandleGet)

		// Admin-only endpoints
		r.Group(func(r chi.Router) {
			if deps.AuthMiddleware != nil {
				r.Use(deps.AuthMiddleware.RequireAuth)
			}
			r.Put("/update", orgs.HandleUpdate)
			r.Delete("/delete", orgs.HandleDelete)

			documents := handlers.NewDocumentHandler(deps.Documents, deps.Logger)
			r.Post("/documents", documents.HandleInsert)
			r.Get("/documents", documents.HandleList)

			audit := handlers.NewAuditHandler(deps.AuditTrail, deps.Logger)
			r.Get("/audit", audit.HandleList)
		})
	})

	admin := handlers.NewAdminHandler(deps.Auth, deps.Logger)
	r.Post("/admin/login", admin.HandleLogin)

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
