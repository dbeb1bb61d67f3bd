package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/aurum-saas/aurum-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the shared metadata store interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Tenant registry methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Migration marker methods
	RecordMigration(ctx context.Context, tenantID uuid.UUID, name string) error
	HasMigration(ctx context.Context, tenantID uuid.UUID, name string) (bool, error)

	// Exec runs a raw statement against the shared database. It exists for
	// the schema provisioner's DDL and must not be used for row traffic.
	Exec(ctx context.Context, query string, args ...interface{}) error

	// Close the store
	Close() error
}
