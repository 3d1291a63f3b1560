package repository

import (
	"context"

	"iqc-platform/internal/audit/domain"
)

// Repository persists audit events.
type Repository interface {
	// Record stores the event. It sets event.CreatedAt on success.
	Record(ctx context.Context, event *domain.AuditEvent) error
	// ListByResource returns events for the resource, newest first, paginated
	// by limit and offset.
	ListByResource(ctx context.Context, resource string, limit, offset int32) ([]*domain.AuditEvent, error)
}
