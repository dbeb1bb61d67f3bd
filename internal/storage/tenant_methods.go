package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-saas/aurum-server/internal/models"
)

// ========== Tenant Methods ==========

// CreateTenant creates a new tenant registry row
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}

	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	query := `
		INSERT INTO tenants (
			id, created_at, updated_at, name, subdomain, schema_name,
			subscription_plan, status, is_active, trial_ends_at, suspended_at,
			contact_info
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.CreatedAt, tenant.UpdatedAt, tenant.Name,
		tenant.Subdomain, tenant.SchemaName, tenant.SubscriptionPlan,
		tenant.Status, tenant.IsActive, tenant.TrialEndsAt, tenant.SuspendedAt,
		tenant.ContactInfo,
	)

	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const tenantColumns = `
	id, created_at, updated_at, name, subdomain, schema_name,
	subscription_plan, status, is_active, trial_ends_at, suspended_at,
	contact_info`

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := row.Scan(
		&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.Name,
		&tenant.Subdomain, &tenant.SchemaName, &tenant.SubscriptionPlan,
		&tenant.Status, &tenant.IsActive, &tenant.TrialEndsAt,
		&tenant.SuspendedAt, &tenant.ContactInfo,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return tenant, nil
}

// GetTenant gets a tenant by ID
func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(s.getDB().QueryRowContext(ctx, query, id))
}

// GetTenantBySubdomain gets a tenant by subdomain
func (s *PostgresStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE subdomain = $1`
	return scanTenant(s.getDB().QueryRowContext(ctx, query, subdomain))
}

// UpdateTenant updates a tenant registry row. The schema name is immutable
// and deliberately absent from the statement.
func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()

	query := `
		UPDATE tenants SET
			updated_at = $2, name = $3, subscription_plan = $4, status = $5,
			is_active = $6, trial_ends_at = $7, suspended_at = $8,
			contact_info = $9
		WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.UpdatedAt, tenant.Name, tenant.SubscriptionPlan,
		tenant.Status, tenant.IsActive, tenant.TrialEndsAt,
		tenant.SuspendedAt, tenant.ContactInfo,
	)

	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListTenants lists tenants
func (s *PostgresStore) ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error) {
	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM tenants").Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT` + tenantColumns + `
		FROM tenants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant := &models.Tenant{}
		err := rows.Scan(
			&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.Name,
			&tenant.Subdomain, &tenant.SchemaName, &tenant.SubscriptionPlan,
			&tenant.Status, &tenant.IsActive, &tenant.TrialEndsAt,
			&tenant.SuspendedAt, &tenant.ContactInfo,
		)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return tenants, count, nil
}

// ========== Migration Marker Methods ==========

// RecordMigration records an applied migration baseline for a tenant
func (s *PostgresStore) RecordMigration(ctx context.Context, tenantID uuid.UUID, name string) error {
	query := `
		INSERT INTO tenant_migrations (tenant_id, migration, applied_at)
		VALUES ($1, $2, $3)`

	_, err := s.getDB().ExecContext(ctx, query, tenantID, name, time.Now())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// HasMigration reports whether a migration marker exists for a tenant
func (s *PostgresStore) HasMigration(ctx context.Context, tenantID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := s.getDB().QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM tenant_migrations WHERE tenant_id = $1 AND migration = $2)",
		tenantID, name,
	).Scan(&exists)
	return exists, err
}
