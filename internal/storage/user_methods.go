package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trainhub/trainhub-server/internal/models"
)

const userColumns = `id, created_at, updated_at, email, full_name, password_hash,
               role, blocked, confirmed, reset_password_token, last_login_at,
               tenant_id, settings`

// userFilterColumns whitelists the filterable user fields.
var userFilterColumns = map[string]string{
	"tenant_id": "tenant_id",
	"email":     "email",
	"role":      "role",
	"blocked":   "blocked",
}

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.FullName,
		&user.PasswordHash, &user.Role, &user.Blocked, &user.Confirmed,
		&user.ResetPasswordToken, &user.LastLoginAt, &user.TenantID, &user.Settings,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return user, err
}

// CreateUser creates a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (
            id, created_at, updated_at, email, full_name, password_hash,
            role, blocked, confirmed, reset_password_token, tenant_id, settings
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.Email, user.FullName,
		user.PasswordHash, user.Role, user.Blocked, user.Confirmed,
		user.ResetPasswordToken, user.TenantID, user.Settings,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetUser gets a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.getDB().QueryRowContext(ctx, query, id))
}

// GetUserByEmail gets a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.getDB().QueryRowContext(ctx, query, email))
}

// GetUserByResetToken gets a user by password reset token
func (s *PostgresStore) GetUserByResetToken(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_password_token = $1`
	return scanUser(s.getDB().QueryRowContext(ctx, query, token))
}

// UpdateUser updates a user
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
        UPDATE users SET
            updated_at = $2, email = $3, full_name = $4, password_hash = $5,
            role = $6, blocked = $7, confirmed = $8, reset_password_token = $9,
            last_login_at = $10, tenant_id = $11, settings = $12
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.UpdatedAt, user.Email, user.FullName, user.PasswordHash,
		user.Role, user.Blocked, user.Confirmed, user.ResetPasswordToken,
		user.LastLoginAt, user.TenantID, user.Settings,
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

// DeleteUser deletes a user
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
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

// ListUsers lists users matching the filters
func (s *PostgresStore) ListUsers(ctx context.Context, filters Filters, page Page) ([]*models.User, int64, error) {
	where, args, err := buildWhere(filters, userFilterColumns)
	if err != nil {
		return nil, 0, err
	}

	var count int64
	err = s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	limit, offset := page.LimitOffset()
	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, count, rows.Err()
}

// CountUsers counts users matching the filters
func (s *PostgresStore) CountUsers(ctx context.Context, filters Filters) (int64, error) {
	where, args, err := buildWhere(filters, userFilterColumns)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count)
	return count, err
}

// CountActiveAuthors counts a tenant's non-blocked users holding the author role
func (s *PostgresStore) CountActiveAuthors(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role = $2 AND blocked = false`,
		tenantID, models.RoleAuthor,
	).Scan(&count)
	return count, err
}
