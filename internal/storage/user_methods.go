package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/aurum-saas/aurum-server/internal/models"
)

// ========== User Methods ==========

// CreateUser creates a new platform user
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (
			id, created_at, updated_at, email, password_hash, full_name,
			tenant_id, is_admin, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.Email,
		user.PasswordHash, user.FullName, user.TenantID, user.IsAdmin,
		user.IsActive,
	)

	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const userColumns = `
	id, created_at, updated_at, email, password_hash, full_name,
	tenant_id, is_admin, is_active`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Email,
		&user.PasswordHash, &user.FullName, &user.TenantID, &user.IsAdmin,
		&user.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser gets a user by ID
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.getDB().QueryRowContext(ctx, query, id))
}

// GetUserByEmail gets a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.getDB().QueryRowContext(ctx, query, email))
}
