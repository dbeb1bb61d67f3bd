package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle state of a tenant subscription.
type TenantStatus string

const (
	TenantStatusTrial     TenantStatus = "TRIAL"
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusExpired   TenantStatus = "EXPIRED"
)

// SubscriptionPlan is the commercial plan a tenant is on.
type SubscriptionPlan string

const (
	PlanBasic        SubscriptionPlan = "BASIC"
	PlanProfessional SubscriptionPlan = "PROFESSIONAL"
	PlanEnterprise   SubscriptionPlan = "ENTERPRISE"
)

// Tenant represents a tenant/business account
type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name      string `json:"name" db:"name"`
	Subdomain string `json:"subdomain" db:"subdomain"`

	// SchemaName is derived from the subdomain at creation and never changes.
	SchemaName string `json:"schemaName" db:"schema_name"`

	SubscriptionPlan SubscriptionPlan `json:"subscriptionPlan" db:"subscription_plan"`
	Status           TenantStatus     `json:"status" db:"status"`

	// IsActive is a kill switch independent of Status: when false, all data
	// access is blocked no matter what Status says.
	IsActive bool `json:"isActive" db:"is_active"`

	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty" db:"trial_ends_at"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty" db:"suspended_at"`

	ContactInfo Variables `json:"contactInfo,omitempty" db:"contact_info"`
}
