package repository

import (
	"context"

	"iqc-platform/internal/limits/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// Repository persists versioned statistical limits and reads the run history
// feeding rolling-window proposals.
type Repository interface {
	// GroupExists reports whether any run was recorded for the group.
	GroupExists(ctx context.Context, group qcrundomain.RunGroup) (bool, error)
	// CurrentLimits returns the group's current limits version, or nil.
	CurrentLimits(ctx context.Context, group qcrundomain.RunGroup) (*domain.LimitsVersion, error)
	// ListVersions returns the group's limits versions, newest first.
	ListVersions(ctx context.Context, group qcrundomain.RunGroup) ([]*domain.LimitsVersion, error)
	// InsertVersion stores v as the group's new current version, demoting the
	// previous one. It assigns v.Version and sets v.IsCurrent.
	InsertVersion(ctx context.Context, v *domain.LimitsVersion) error
	// EligibleRecent returns up to limit most recent in-control points for the
	// group, newest first, skipping points carrying any excluded rule code.
	EligibleRecent(ctx context.Context, group qcrundomain.RunGroup, limit int, excludeRules []string) ([]domain.SamplePoint, error)
	// IncludedCount counts the group's in-control points before rule exclusion.
	IncludedCount(ctx context.Context, group qcrundomain.RunGroup) (int, error)
}
