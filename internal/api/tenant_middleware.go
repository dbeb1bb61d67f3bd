package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aurum-saas/aurum-server/internal/models"
	"github.com/aurum-saas/aurum-server/internal/tenant"
)

type contextKey string

const tenantContextKey contextKey = "tenant"

// tenantMiddleware resolves the tenant identifier from the request and
// validates it before any business handler runs. The identifier comes from
// the X-Tenant-ID header, falling back to the host's first subdomain label.
func (s *RESTServer) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := r.Header.Get("X-Tenant-ID")
		if identifier == "" {
			identifier = hostSubdomain(r.Host)
		}
		if identifier == "" {
			s.respondError(w, http.StatusBadRequest, "missing tenant identifier")
			return
		}

		t, err := s.tenants.Validate(r.Context(), identifier)
		if err != nil {
			s.respondTenantError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFromContext returns the validated tenant set by tenantMiddleware
func tenantFromContext(ctx context.Context) *models.Tenant {
	t, _ := ctx.Value(tenantContextKey).(*models.Tenant)
	return t
}

// respondTenantError maps the tenant error taxonomy to HTTP statuses:
// not found is 404, the policy denials are 403, everything else is 500.
func (s *RESTServer) respondTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		s.respondError(w, http.StatusNotFound, "tenant not found")
	case tenant.IsAccessDenied(err):
		s.respondError(w, http.StatusForbidden, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// hostSubdomain extracts the first label of a multi-label host, e.g.
// "acme" from "acme.aurum.example:8080". A bare host yields "".
func hostSubdomain(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
