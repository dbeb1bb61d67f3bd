package tenant

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aurum-saas/aurum-server/internal/models"
	"github.com/aurum-saas/aurum-server/internal/storage"
)

// fakeStore is an in-memory storage.Store for the tenant package tests.
type fakeStore struct {
	mu sync.Mutex

	tenants     map[uuid.UUID]*models.Tenant
	bySubdomain map[string]uuid.UUID
	migrations  map[string]bool
	ddl         []string

	lookupCalls int
	lookupErr   error
	execFailOn  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:     make(map[uuid.UUID]*models.Tenant),
		bySubdomain: make(map[string]uuid.UUID),
		migrations:  make(map[string]bool),
	}
}

func (f *fakeStore) addTenant(t *models.Tenant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	f.tenants[t.ID] = t
	f.bySubdomain[t.Subdomain] = t.ID
}

func (f *fakeStore) lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupCalls
}

func (f *fakeStore) BeginTx(ctx context.Context) (storage.Store, error) { return f, nil }
func (f *fakeStore) Commit() error                                      { return nil }
func (f *fakeStore) Rollback() error                                    { return nil }
func (f *fakeStore) Close() error                                       { return nil }

func (f *fakeStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bySubdomain[t.Subdomain]; ok {
		return storage.ErrDuplicateKey
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	f.tenants[t.ID] = t
	f.bySubdomain[t.Subdomain] = t.ID
	return nil
}

func (f *fakeStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	t, ok := f.tenants[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	id, ok := f.bySubdomain[subdomain]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return f.tenants[id], nil
}

func (f *fakeStore) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tenants[t.ID]; !ok {
		return storage.ErrNotFound
	}
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeStore) ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) CreateUser(ctx context.Context, u *models.User) error { return nil }

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) RecordMigration(ctx context.Context, tenantID uuid.UUID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.migrations[tenantID.String()+"/"+name] = true
	return nil
}

func (f *fakeStore) HasMigration(ctx context.Context, tenantID uuid.UUID, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.migrations[tenantID.String()+"/"+name], nil
}

func (f *fakeStore) Exec(ctx context.Context, query string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execFailOn != "" && strings.Contains(query, f.execFailOn) {
		return errConnRefused
	}
	f.ddl = append(f.ddl, query)
	return nil
}
