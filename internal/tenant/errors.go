package tenant

import "errors"

// Access decision and infrastructure errors. The API layer maps these to
// HTTP statuses: ErrTenantNotFound to 404, the three policy denials to 403,
// everything else to 500.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantInactive  = errors.New("tenant is inactive")
	ErrTenantSuspended = errors.New("tenant is suspended")
	ErrTenantExpired   = errors.New("tenant subscription has expired")

	// ErrMetadataUnavailable wraps transient failures reaching the tenant
	// registry, as opposed to a clean miss.
	ErrMetadataUnavailable = errors.New("tenant metadata store unavailable")

	// ErrProvisioningFailed wraps DDL failures during tenant onboarding.
	ErrProvisioningFailed = errors.New("tenant schema provisioning failed")

	// ErrConnectionFailed wraps failures opening or configuring a
	// schema-bound connection for an otherwise valid tenant.
	ErrConnectionFailed = errors.New("tenant connection acquisition failed")
)

// IsAccessDenied reports whether err is one of the policy denials that an
// HTTP caller should see as 403.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrTenantInactive) ||
		errors.Is(err, ErrTenantSuspended) ||
		errors.Is(err, ErrTenantExpired)
}
