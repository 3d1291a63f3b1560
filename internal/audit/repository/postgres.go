package repository

import (
	"context"
	"database/sql"
	"time"

	"iqc-platform/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record stores the event. It sets event.CreatedAt on success.
func (r *PostgresRepository) Record(ctx context.Context, event *domain.AuditEvent) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor, action, resource, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Actor, event.Action, event.Resource,
		nullMetadata(event.Metadata), now)
	if err != nil {
		return err
	}
	event.CreatedAt = now
	return nil
}

// ListByResource returns events for the resource, newest first.
func (r *PostgresRepository) ListByResource(ctx context.Context, resource string, limit, offset int32) ([]*domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, action, resource, metadata, created_at
		FROM audit_log WHERE resource = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		resource, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditEvent
	for rows.Next() {
		var (
			e    domain.AuditEvent
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Resource, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			e.Metadata = []byte(meta.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullMetadata(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
