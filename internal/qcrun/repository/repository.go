package repository

import (
	"context"
	"time"

	"iqc-platform/internal/qcrun/domain"
)

// ListFilter narrows a run listing. Zero-valued fields are ignored.
type ListFilter struct {
	DeviceCode string
	TestCode   string
	Level      string
	LotCode    string
	Status     string
	Limit      int32
	Offset     int32
}

// Repository persists QC runs and serves the evaluation read paths.
type Repository interface {
	// Create persists the run.
	Create(ctx context.Context, run *domain.QcRun) error
	// GetByID returns the run, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.QcRun, error)
	// List returns runs matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*domain.QcRun, error)
	// HistoryBefore returns up to limit points of the group measured strictly
	// before the given instant, newest first.
	HistoryBefore(ctx context.Context, group domain.RunGroup, before time.Time, limit int) ([]domain.QcDataPoint, error)
	// PeersAt returns points from the group's other levels measured at exactly
	// the given instant (same device/test/lot).
	PeersAt(ctx context.Context, group domain.RunGroup, at time.Time) ([]domain.QcDataPoint, error)
	// UpdateStatus transitions the run's review state. Returns sql.ErrNoRows
	// if the run does not exist.
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, note, reviewedBy string) error
}
