package webserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authcore/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.Tracing())
	r.Use(middleware.WithTenantIdentifier())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/recipe/role/permissions", a.getPermissionsForRole)
	r.Put("/recipe/role", a.putRole)

	r.Route("/recipe/multitenancy", func(mr chi.Router) {
		mr.Use(a.apiKeyAuth)
		mr.Put("/tenant", a.putTenant)
		mr.Get("/tenant", a.getTenant)
		mr.Delete("/tenant", a.deleteTenant)
		mr.Get("/tenant/list", a.listTenants)
		mr.Delete("/app", a.deleteApp)
		mr.Delete("/connectionuridomain", a.deleteConnectionURIDomain)
		mr.Post("/tenant/user", a.postTenantUser)
		mr.Post("/tenant/role", a.postTenantRole)
	})

	return r
}

// apiKeyAuth rejects admin calls without the configured api key. An
// empty configured key leaves the surface open (dev mode).
func (a *App) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey != "" && r.Header.Get("Api-Key") != a.apiKey {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
