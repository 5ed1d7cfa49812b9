package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"localmart/backend/internal/audit/domain"
)

// PostgresRepository implements Repository on Postgres via sqlx.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	const q = `INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES (:id, :user_id, :action, :resource, :ip, :metadata, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, a)
	return err
}

// ListByUser returns audit logs for the given user, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	var list []*domain.AuditLog
	const q = `SELECT id, COALESCE(user_id, '') AS user_id, action, resource, ip,
		COALESCE(metadata, '') AS metadata, created_at
		FROM audit_logs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &list, q, userID, limit, offset); err != nil {
		return nil, err
	}
	return list, nil
}
