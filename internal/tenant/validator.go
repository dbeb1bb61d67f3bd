package tenant

import (
	"context"

	"github.com/aurum-saas/aurum-server/internal/models"
)

// Validator turns a directory lookup into an access decision.
type Validator struct {
	directory *Directory
}

// NewValidator creates a validator over a directory
func NewValidator(directory *Directory) *Validator {
	return &Validator{directory: directory}
}

// Validate resolves an identifier and applies the access policy.
//
// The check order is fixed: the is_active kill switch is evaluated before
// the status field, because an inactive tenant may carry any status and the
// caller-visible error must be deterministic.
func (v *Validator) Validate(ctx context.Context, identifier string) (*models.Tenant, error) {
	tenant, err := v.directory.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if !tenant.IsActive {
		return nil, ErrTenantInactive
	}

	switch tenant.Status {
	case models.TenantStatusSuspended:
		return nil, ErrTenantSuspended
	case models.TenantStatusExpired:
		return nil, ErrTenantExpired
	}

	return tenant, nil
}
