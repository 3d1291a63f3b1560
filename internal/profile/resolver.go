// Package profile resolves the active rules profile for a device/test/time.
package profile

import (
	"context"
	"log"
	"sort"
	"time"

	"iqc-platform/internal/profile/domain"
)

// BindingStore is the minimal binding/profile store the resolver needs.
type BindingStore interface {
	// ActiveBindings returns candidate bindings for the device/test; the
	// resolver filters and ranks them. Implementations may pre-filter.
	ActiveBindings(ctx context.Context, deviceID, testID string, at time.Time) ([]domain.ProfileBinding, error)
	// GetProfile returns the stored profile, or nil if not found.
	GetProfile(ctx context.Context, id string) (*domain.StoredProfile, error)
}

// Cache caches resolved profiles. Get returns nil on a miss.
type Cache interface {
	Get(ctx context.Context, deviceID, testID string) (*domain.RulesProfile, error)
	Set(ctx context.Context, deviceID, testID string, p domain.RulesProfile) error
}

// Resolver picks the governing profile by scope priority and time window.
// Resolution is a total function: it always yields a profile and fails open
// to the built-in default, because clinical evaluation must never halt for
// lack of configuration.
type Resolver struct {
	store   BindingStore
	cache   Cache // optional
	enabled bool
}

// NewResolver returns a Resolver. cache may be nil. When enabled is false
// (profile-based configuration switched off) every resolution returns the
// built-in default.
func NewResolver(store BindingStore, cache Cache, enabled bool) *Resolver {
	return &Resolver{store: store, cache: cache, enabled: enabled}
}

// Resolve returns the profile governing the given device/test at the given
// instant. Never returns an error: store failures, missing bindings, and
// fully-invalid profiles all fall back to the default profile.
func (r *Resolver) Resolve(ctx context.Context, deviceID, testID string, at time.Time) domain.RulesProfile {
	if !r.enabled || r.store == nil {
		return domain.DefaultProfile()
	}

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, deviceID, testID); err == nil && cached != nil {
			return *cached
		}
	}

	resolved := r.resolveFromStore(ctx, deviceID, testID, at)

	if r.cache != nil {
		if err := r.cache.Set(ctx, deviceID, testID, resolved); err != nil {
			log.Printf("profile: cache set failed for %s/%s: %v", deviceID, testID, err)
		}
	}
	return resolved
}

func (r *Resolver) resolveFromStore(ctx context.Context, deviceID, testID string, at time.Time) domain.RulesProfile {
	bindings, err := r.store.ActiveBindings(ctx, deviceID, testID, at)
	if err != nil {
		log.Printf("profile: binding store unavailable, using default profile: %v", err)
		return domain.DefaultProfile()
	}

	candidates := bindings[:0:0]
	for _, b := range bindings {
		if b.Matches(deviceID, testID, at) {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return domain.DefaultProfile()
	}

	// Most specific scope wins; ties within a priority break by the most
	// recent activeFrom, open-ended bindings ranking oldest.
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].ScopeType.Priority(), candidates[j].ScopeType.Priority()
		if pi != pj {
			return pi < pj
		}
		return activeFromRank(candidates[i]).After(activeFromRank(candidates[j]))
	})
	winner := candidates[0]

	stored, err := r.store.GetProfile(ctx, winner.ProfileID)
	if err != nil || stored == nil {
		log.Printf("profile: profile %s not loadable, using default: %v", winner.ProfileID, err)
		return domain.DefaultProfile()
	}

	parsed, err := domain.ParseProfileConfig(stored.ConfigJSON)
	if err != nil {
		log.Printf("profile: profile %s unreadable, using default: %v", stored.ID, err)
		return domain.DefaultProfile()
	}
	for _, code := range parsed.Dropped {
		log.Printf("profile: dropped malformed rule entry %q from profile %s", code, stored.ID)
	}
	if len(parsed.Profile.Rules) == 0 {
		return domain.DefaultProfile()
	}

	resolved := parsed.Profile
	resolved.ID = stored.ID
	resolved.Name = stored.Name
	if resolved.WindowSizeDefault <= 0 {
		resolved.WindowSizeDefault = domain.DefaultProfile().WindowSizeDefault
	}
	return resolved
}

func activeFromRank(b domain.ProfileBinding) time.Time {
	if b.ActiveFrom == nil {
		return time.Time{}
	}
	return *b.ActiveFrom
}
