package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/models"
)

// CreateTenant creates a new tenant
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}

	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	tenant.IsActive = true

	query := `
        INSERT INTO tenants (
            id, created_at, updated_at, name, contact_email, is_active
        ) VALUES (
            $1, $2, $3, $4, $5, $6
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.CreatedAt, tenant.UpdatedAt, tenant.Name,
		tenant.ContactEmail, tenant.IsActive,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetTenant gets a tenant by ID
func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `
        SELECT id, created_at, updated_at, name, contact_email, is_active, suspended_at
        FROM tenants
        WHERE id = $1`

	tenant := &models.Tenant{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt, &tenant.Name,
		&tenant.ContactEmail, &tenant.IsActive, &tenant.SuspendedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	return tenant, err
}

// UpdateTenant updates a tenant
func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()

	query := `
        UPDATE tenants SET
            updated_at = $2, name = $3, contact_email = $4,
            is_active = $5, suspended_at = $6
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		tenant.ID, tenant.UpdatedAt, tenant.Name, tenant.ContactEmail,
		tenant.IsActive, tenant.SuspendedAt,
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
