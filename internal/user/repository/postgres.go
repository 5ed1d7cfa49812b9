package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"localmart/backend/internal/user/domain"
)

type PostgresDirectory struct {
	db *sqlx.DB
}

// NewPostgresDirectory returns a user directory backed by the given database.
func NewPostgresDirectory(db *sqlx.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (d *PostgresDirectory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := d.db.GetContext(ctx, &u, `
		SELECT id, email, COALESCE(name, '') AS name, role, password_hash,
		       is_active, last_login_at, created_at, updated_at
		FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (d *PostgresDirectory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := d.db.GetContext(ctx, &u, `
		SELECT id, email, COALESCE(name, '') AS name, role, password_hash,
		       is_active, last_login_at, created_at, updated_at
		FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Create persists the user. The user must have ID set; it is not assigned here.
func (d *PostgresDirectory) Create(ctx context.Context, u *domain.User) error {
	_, err := d.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, is_active, created_at, updated_at)
		VALUES (:id, :email, :name, :role, :password_hash, :is_active, :created_at, :updated_at)`, u)
	return err
}

// UpdateLastLogin records the moment of a successful login. No-op for missing users.
func (d *PostgresDirectory) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, userID, at)
	return err
}
