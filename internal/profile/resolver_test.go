package profile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"iqc-platform/internal/profile/domain"
)

type memBindingStore struct {
	mu       sync.Mutex
	bindings []domain.ProfileBinding
	profiles map[string]*domain.StoredProfile
	fail     bool
}

func (s *memBindingStore) ActiveBindings(ctx context.Context, deviceID, testID string, at time.Time) ([]domain.ProfileBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store down")
	}
	out := make([]domain.ProfileBinding, len(s.bindings))
	copy(out, s.bindings)
	return out, nil
}

func (s *memBindingStore) GetProfile(ctx context.Context, id string) (*domain.StoredProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store down")
	}
	return s.profiles[id], nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string]domain.RulesProfile
}

func (c *memCache) key(d, t string) string { return d + "|" + t }

func (c *memCache) Get(ctx context.Context, deviceID, testID string) (*domain.RulesProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.m[c.key(deviceID, testID)]; ok {
		return &p, nil
	}
	return nil, nil
}

func (c *memCache) Set(ctx context.Context, deviceID, testID string, p domain.RulesProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]domain.RulesProfile)
	}
	c.m[c.key(deviceID, testID)] = p
	return nil
}

func storedProfile(t *testing.T, id, name string, rules map[string]domain.RuleConfig) *domain.StoredProfile {
	t.Helper()
	cfg := map[string]interface{}{"windowSizeDefault": 12, "rules": rules}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	return &domain.StoredProfile{ID: id, Name: name, ConfigJSON: raw}
}

func oneRule(code string) map[string]domain.RuleConfig {
	return map[string]domain.RuleConfig{code: {Enabled: true, Scope: domain.ScopeWithinLevel}}
}

func TestResolve_ScopePriorityChain(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memBindingStore{
		profiles: map[string]*domain.StoredProfile{
			"p-dt": storedProfile(t, "p-dt", "device-test", oneRule("1-3s")),
			"p-t":  storedProfile(t, "p-t", "test", oneRule("1-2s")),
			"p-g":  storedProfile(t, "p-g", "global", oneRule("10x")),
		},
		bindings: []domain.ProfileBinding{
			{ID: "b1", ProfileID: "p-dt", ScopeType: domain.ScopeTypeDeviceTest, DeviceID: "d1", TestID: "t1"},
			{ID: "b2", ProfileID: "p-t", ScopeType: domain.ScopeTypeTest, TestID: "t1"},
			{ID: "b3", ProfileID: "p-g", ScopeType: domain.ScopeTypeGlobal},
		},
	}
	r := NewResolver(store, nil, true)

	// device_test wins.
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.ID != "p-dt" {
		t.Errorf("resolved %q, want p-dt", got.ID)
	}

	// Remove device_test: falls back to test.
	store.bindings = store.bindings[1:]
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.ID != "p-t" {
		t.Errorf("resolved %q, want p-t", got.ID)
	}

	// Remove test: falls back to global.
	store.bindings = store.bindings[1:]
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.ID != "p-g" {
		t.Errorf("resolved %q, want p-g", got.ID)
	}

	// Remove all: built-in default.
	store.bindings = nil
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.Name != "builtin-default" {
		t.Errorf("resolved %q, want builtin-default", got.Name)
	}
}

func TestResolve_TieBreakByActiveFrom(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := at.Add(-48 * time.Hour)
	newer := at.Add(-1 * time.Hour)
	store := &memBindingStore{
		profiles: map[string]*domain.StoredProfile{
			"p-old": storedProfile(t, "p-old", "old", oneRule("1-3s")),
			"p-new": storedProfile(t, "p-new", "new", oneRule("1-2s")),
		},
		bindings: []domain.ProfileBinding{
			{ID: "b1", ProfileID: "p-old", ScopeType: domain.ScopeTypeGlobal, ActiveFrom: &older},
			{ID: "b2", ProfileID: "p-new", ScopeType: domain.ScopeTypeGlobal, ActiveFrom: &newer},
		},
	}
	r := NewResolver(store, nil, true)
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.ID != "p-new" {
		t.Errorf("resolved %q, want p-new (most recent activeFrom wins the tie)", got.ID)
	}
}

func TestResolve_ExpiredBindingIgnored(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := at.Add(-time.Hour)
	store := &memBindingStore{
		profiles: map[string]*domain.StoredProfile{"p1": storedProfile(t, "p1", "p1", oneRule("1-3s"))},
		bindings: []domain.ProfileBinding{
			{ID: "b1", ProfileID: "p1", ScopeType: domain.ScopeTypeGlobal, ActiveTo: &expired},
		},
	}
	r := NewResolver(store, nil, true)
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.Name != "builtin-default" {
		t.Errorf("expired binding must not govern, got %q", got.Name)
	}
}

func TestResolve_FailOpen(t *testing.T) {
	r := NewResolver(&memBindingStore{fail: true}, nil, true)
	got := r.Resolve(context.Background(), "d1", "t1", time.Now())
	if got.Name != "builtin-default" {
		t.Errorf("store failure must fail open to the default profile, got %q", got.Name)
	}
}

func TestResolve_DisabledAlwaysDefault(t *testing.T) {
	store := &memBindingStore{
		profiles: map[string]*domain.StoredProfile{"p1": storedProfile(t, "p1", "p1", oneRule("1-3s"))},
		bindings: []domain.ProfileBinding{{ID: "b1", ProfileID: "p1", ScopeType: domain.ScopeTypeGlobal}},
	}
	r := NewResolver(store, nil, false)
	if got := r.Resolve(context.Background(), "d1", "t1", time.Now()); got.Name != "builtin-default" {
		t.Errorf("disabled profile config must always resolve the default, got %q", got.Name)
	}
}

func TestResolve_NothingValidatesFallsBack(t *testing.T) {
	store := &memBindingStore{
		profiles: map[string]*domain.StoredProfile{
			"p1": {ID: "p1", Name: "broken", ConfigJSON: []byte(`{"rules": {"1-3s": {"enabled": "nope"}}}`)},
		},
		bindings: []domain.ProfileBinding{{ID: "b1", ProfileID: "p1", ScopeType: domain.ScopeTypeGlobal}},
	}
	r := NewResolver(store, nil, true)
	if got := r.Resolve(context.Background(), "d1", "t1", time.Now()); got.Name != "builtin-default" {
		t.Errorf("profile with zero valid rules must fall back to default, got %q", got.Name)
	}
}

func TestResolve_CacheHitSkipsStore(t *testing.T) {
	at := time.Now()
	store := &memBindingStore{
		profiles: map[string]*domain.StoredProfile{"p1": storedProfile(t, "p1", "p1", oneRule("1-3s"))},
		bindings: []domain.ProfileBinding{{ID: "b1", ProfileID: "p1", ScopeType: domain.ScopeTypeGlobal}},
	}
	cache := &memCache{}
	r := NewResolver(store, cache, true)

	if got := r.Resolve(context.Background(), "d1", "t1", at); got.ID != "p1" {
		t.Fatalf("resolved %q, want p1", got.ID)
	}

	// Store goes down; the cached profile still serves.
	store.mu.Lock()
	store.fail = true
	store.mu.Unlock()
	if got := r.Resolve(context.Background(), "d1", "t1", at); got.ID != "p1" {
		t.Errorf("cache hit should serve p1 with the store down, got %q", got.ID)
	}
}
