package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-saas/aurum-server/internal/config"
	"github.com/aurum-saas/aurum-server/internal/models"
	"github.com/aurum-saas/aurum-server/internal/storage"
	"github.com/aurum-saas/aurum-server/internal/tenant"
)

// apiFakeStore serves tenant lookups for middleware tests; everything else is
// a stub.
type apiFakeStore struct {
	tenants   map[string]*models.Tenant // keyed by subdomain
	lookupErr error
}

func (f *apiFakeStore) BeginTx(ctx context.Context) (storage.Store, error) { return f, nil }
func (f *apiFakeStore) Commit() error                                      { return nil }
func (f *apiFakeStore) Rollback() error                                    { return nil }
func (f *apiFakeStore) Close() error                                       { return nil }

func (f *apiFakeStore) CreateTenant(context.Context, *models.Tenant) error { return nil }

func (f *apiFakeStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, t := range f.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *apiFakeStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if t, ok := f.tenants[subdomain]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (f *apiFakeStore) UpdateTenant(context.Context, *models.Tenant) error { return nil }

func (f *apiFakeStore) ListTenants(context.Context, int, int) ([]*models.Tenant, int64, error) {
	return nil, 0, nil
}

func (f *apiFakeStore) CreateUser(context.Context, *models.User) error { return nil }

func (f *apiFakeStore) GetUser(context.Context, uuid.UUID) (*models.User, error) {
	return nil, storage.ErrNotFound
}

func (f *apiFakeStore) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, storage.ErrNotFound
}

func (f *apiFakeStore) RecordMigration(context.Context, uuid.UUID, string) error { return nil }

func (f *apiFakeStore) HasMigration(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (f *apiFakeStore) Exec(context.Context, string, ...interface{}) error { return nil }

func newMiddlewareFixture(tenants ...*models.Tenant) (*RESTServer, *apiFakeStore) {
	store := &apiFakeStore{tenants: make(map[string]*models.Tenant)}
	for _, t := range tenants {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		store.tenants[t.Subdomain] = t
	}

	directory := tenant.NewDirectory(store, 5*time.Minute)
	s := NewRESTServer(&config.Config{}, Deps{
		Store:     store,
		Directory: directory,
		Validator: tenant.NewValidator(directory),
	})
	return s, store
}

func echoTenant() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := tenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(t.Subdomain))
	})
}

func TestTenantMiddlewareHeaderIdentifier(t *testing.T) {
	s, _ := newMiddlewareFixture(&models.Tenant{
		Subdomain: "acme", SchemaName: "tenant_acme",
		Status: models.TenantStatusActive, IsActive: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", rec.Body.String())
}

func TestTenantMiddlewareHostFallback(t *testing.T) {
	s, _ := newMiddlewareFixture(&models.Tenant{
		Subdomain: "acme", SchemaName: "tenant_acme",
		Status: models.TenantStatusActive, IsActive: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Host = "acme.aurum.example:8080"
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", rec.Body.String())
}

func TestTenantMiddlewareMissingIdentifier(t *testing.T) {
	s, _ := newMiddlewareFixture()

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Host = "localhost:8080"
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantMiddlewareUnknownTenant(t *testing.T) {
	s, _ := newMiddlewareFixture()

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("X-Tenant-ID", "ghost")
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantMiddlewareSuspendedTenant(t *testing.T) {
	s, _ := newMiddlewareFixture(&models.Tenant{
		Subdomain: "acme", SchemaName: "tenant_acme",
		Status: models.TenantStatusSuspended, IsActive: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantMiddlewareInactiveTenant(t *testing.T) {
	s, _ := newMiddlewareFixture(&models.Tenant{
		Subdomain: "acme", SchemaName: "tenant_acme",
		Status: models.TenantStatusActive, IsActive: false,
	})

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTenantMiddlewareStoreUnavailable(t *testing.T) {
	s, store := newMiddlewareFixture()
	store.lookupErr = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("X-Tenant-ID", "acme")
	rec := httptest.NewRecorder()

	s.tenantMiddleware(echoTenant()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHostSubdomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"acme.aurum.example", "acme"},
		{"acme.aurum.example:8080", "acme"},
		{"aurum.example", ""},
		{"localhost:8080", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, hostSubdomain(tt.host), tt.host)
	}
}
