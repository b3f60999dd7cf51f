// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"net/http"

	"authcore/pkg/tenants"
)

type ctxTenantKey struct{}

// WithTenantIdentifier derives the caller's tenant identifier from the
// connectionUriDomain / appId / tenantId query parameters and stores it
// on the request context. Unrouted requests land on the default
// identifier.
//
// Health and metrics endpoints are served without tenant context.
func WithTenantIdentifier() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			q := r.URL.Query()
			id := tenants.NewIdentifier(
				q.Get("connectionUriDomain"),
				q.Get("appId"),
				q.Get("tenantId"))
			ctx := context.WithValue(r.Context(), ctxTenantKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentifierFrom returns the identifier resolved for this request, or
// the default identifier when the middleware did not run.
func IdentifierFrom(ctx context.Context) tenants.Identifier {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.Identifier)
	}
	return tenants.DefaultIdentifier()
}
