package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a platform user (tenant owner or platform admin)
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	FullName     string `json:"fullName" db:"full_name"`

	// TenantID is nil for platform admins.
	TenantID *uuid.UUID `json:"tenantId,omitempty" db:"tenant_id"`

	IsAdmin  bool `json:"isAdmin" db:"is_admin"`
	IsActive bool `json:"isActive" db:"is_active"`
}
