package repository

import (
	"context"
	"time"

	"iqc-platform/internal/profile/domain"
)

// Repository persists rules profiles and their bindings.
type Repository interface {
	// CreateProfile stores a new profile document.
	CreateProfile(ctx context.Context, p *domain.StoredProfile) error
	// UpdateProfile replaces the profile's name and config document.
	UpdateProfile(ctx context.Context, p *domain.StoredProfile) error
	// GetProfile returns the stored profile, or nil if not found.
	GetProfile(ctx context.Context, id string) (*domain.StoredProfile, error)
	// ListProfiles returns all stored profiles, newest first.
	ListProfiles(ctx context.Context) ([]*domain.StoredProfile, error)
	// CreateBinding stores a new profile binding.
	CreateBinding(ctx context.Context, b *domain.ProfileBinding) error
	// ActiveBindings returns bindings that could govern the device/test at
	// the given instant; the resolver ranks them.
	ActiveBindings(ctx context.Context, deviceID, testID string, at time.Time) ([]domain.ProfileBinding, error)
	// DeleteBinding removes a binding by id.
	DeleteBinding(ctx context.Context, id string) error
}
