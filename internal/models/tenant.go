package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a customer organization. Every non-global resource
// belongs to exactly one tenant and the ownership reference is immutable
// after creation.
type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name         string `json:"name" db:"name"`
	ContactEmail string `json:"contactEmail" db:"contact_email"`

	IsActive    bool       `json:"isActive" db:"is_active"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty" db:"suspended_at"`
}

// RecordID returns the tenant's id.
func (t *Tenant) RecordID() uuid.UUID { return t.ID }

// RecordTenant returns the tenant's own id; a tenant owns itself.
func (t *Tenant) RecordTenant() uuid.UUID { return t.ID }

// SetRecordTenant is a no-op; a tenant does not reference itself.
func (t *Tenant) SetRecordTenant(uuid.UUID) {}
