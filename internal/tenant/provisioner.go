package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/models"
	"github.com/aurum-saas/aurum-server/internal/storage"
)

// baselineMigration marks the fixed table set every tenant schema starts with.
const baselineMigration = "0001_baseline"

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ProvisionRequest carries the inputs of tenant onboarding.
type ProvisionRequest struct {
	Name        string
	Subdomain   string
	Plan        models.SubscriptionPlan
	ContactInfo models.Variables
}

// Provisioner creates the isolated storage region for a new tenant: the
// registry row, the schema, its fixed table set and the migration marker.
type Provisioner struct {
	store        storage.Store
	directory    *Directory
	schemaPrefix string
	trialDays    int
}

// NewProvisioner creates a provisioner
func NewProvisioner(store storage.Store, directory *Directory, schemaPrefix string, trialDays int) *Provisioner {
	return &Provisioner{
		store:        store,
		directory:    directory,
		schemaPrefix: schemaPrefix,
		trialDays:    trialDays,
	}
}

// DeriveSchemaName derives the schema name for a subdomain: lowercase,
// non-alphanumerics replaced by underscores, prefixed. The derivation is
// deterministic so that a subdomain always maps to the same schema, and the
// result is safe to embed as a quoted SQL identifier.
func DeriveSchemaName(prefix, subdomain string) string {
	s := strings.ToLower(subdomain)
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
	return prefix + s
}

// Provision onboards a new tenant. The registry row is inserted before the
// schema exists; a DDL failure after that point surfaces as a loud
// ErrProvisioningFailed carrying tenant id and schema name, leaving the row
// in place for manual remediation.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*models.Tenant, error) {
	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))
	if !subdomainPattern.MatchString(subdomain) {
		return nil, fmt.Errorf("%w: invalid subdomain %q", storage.ErrInvalidData, req.Subdomain)
	}

	plan := req.Plan
	if plan == "" {
		plan = models.PlanBasic
	}

	trialEnds := time.Now().AddDate(0, 0, p.trialDays)
	tenant := &models.Tenant{
		Name:             req.Name,
		Subdomain:        subdomain,
		SchemaName:       DeriveSchemaName(p.schemaPrefix, subdomain),
		SubscriptionPlan: plan,
		Status:           models.TenantStatusTrial,
		IsActive:         true,
		TrialEndsAt:      &trialEnds,
		ContactInfo:      req.ContactInfo,
	}

	if err := p.store.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant record: %w", err)
	}

	if err := p.createSchema(ctx, tenant.SchemaName); err != nil {
		log.Error().Err(err).
			Str("tenant_id", tenant.ID.String()).
			Str("schema", tenant.SchemaName).
			Msg("Schema DDL failed after registry insert, tenant left half-provisioned")
		return nil, fmt.Errorf("%w: tenant %s schema %s: %v",
			ErrProvisioningFailed, tenant.ID, tenant.SchemaName, err)
	}

	if err := p.store.RecordMigration(ctx, tenant.ID, baselineMigration); err != nil {
		return nil, fmt.Errorf("%w: tenant %s schema %s: record migration: %v",
			ErrProvisioningFailed, tenant.ID, tenant.SchemaName, err)
	}

	p.directory.Prime(tenant)

	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("subdomain", tenant.Subdomain).
		Str("schema", tenant.SchemaName).
		Msg("Tenant provisioned")

	return tenant, nil
}

// createSchema issues the schema and fixed table DDL. The schema name is the
// single injection-sensitive identifier in the system; it is derived from a
// validated subdomain and still quoted here.
func (p *Provisioner) createSchema(ctx context.Context, schemaName string) error {
	quoted := pq.QuoteIdentifier(schemaName)

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA %s`, quoted),

		fmt.Sprintf(`CREATE TABLE %s.customers (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			current_balance BIGINT NOT NULL DEFAULT 0
		)`, quoted),

		fmt.Sprintf(`CREATE TABLE %s.products (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			name TEXT NOT NULL,
			sku TEXT NOT NULL UNIQUE,
			metal TEXT NOT NULL DEFAULT '',
			weight_grams NUMERIC(10,3) NOT NULL DEFAULT 0,
			price BIGINT NOT NULL DEFAULT 0
		)`, quoted),

		fmt.Sprintf(`CREATE TABLE %s.ledger_entries (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			owner_id UUID NOT NULL REFERENCES %s.customers (id),
			entry_type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			balance_after BIGINT NOT NULL
		)`, quoted, quoted),

		fmt.Sprintf(`CREATE INDEX ledger_entries_owner_idx ON %s.ledger_entries (owner_id, created_at)`, quoted),

		fmt.Sprintf(`CREATE TABLE %s.audit_log (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			entity TEXT NOT NULL,
			entity_id UUID,
			details JSONB
		)`, quoted),
	}

	for _, stmt := range statements {
		if err := p.store.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
