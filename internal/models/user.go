package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Authors manage the tenant (users, trainings, billing);
// students only receive assignments and notifications.
const (
	RoleAuthor  = "author"
	RoleStudent = "student"
)

// User represents an account belonging to exactly one tenant.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Email    string `json:"email" db:"email"`
	FullName string `json:"fullName" db:"full_name"`

	PasswordHash string `json:"-" db:"password_hash"`

	Role      string `json:"role" db:"role"`
	Blocked   bool   `json:"blocked" db:"blocked"`
	Confirmed bool   `json:"confirmed" db:"confirmed"`

	ResetPasswordToken *string `json:"-" db:"reset_password_token"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`

	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`

	Settings Variables `json:"settings" db:"settings"`
}

// IsAuthor reports whether the user holds the privileged author role.
func (u *User) IsAuthor() bool {
	return u.Role == RoleAuthor
}

// RecordID returns the user's id.
func (u *User) RecordID() uuid.UUID { return u.ID }

// RecordTenant returns the owning tenant id.
func (u *User) RecordTenant() uuid.UUID { return u.TenantID }

// SetRecordTenant stamps the owning tenant id.
func (u *User) SetRecordTenant(id uuid.UUID) { u.TenantID = id }
