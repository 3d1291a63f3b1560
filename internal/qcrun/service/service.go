// Package service implements QC run ingestion: each submitted measurement is
// evaluated against the group's current limits and the governing rules
// profile, then persisted with its verdict.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	limitsdomain "iqc-platform/internal/limits/domain"
	profiledomain "iqc-platform/internal/profile/domain"
	"iqc-platform/internal/qcrun/domain"
	"iqc-platform/internal/qcrun/repository"
	"iqc-platform/internal/rules"
)

// ErrNoCurrentLimits is returned when a run's group has no current limits
// version to judge the measurement against.
var ErrNoCurrentLimits = errors.New("no current limits for run group")

// LimitsStore reads the current limits version for a group.
type LimitsStore interface {
	CurrentLimits(ctx context.Context, group domain.RunGroup) (*limitsdomain.LimitsVersion, error)
}

// ProfileResolver resolves the rules profile governing a device/test/time.
type ProfileResolver interface {
	Resolve(ctx context.Context, deviceID, testID string, at time.Time) profiledomain.RulesProfile
}

// SubmitRequest is one QC measurement to ingest.
type SubmitRequest struct {
	Group      domain.RunGroup
	Value      float64
	MeasuredAt time.Time
}

type Service struct {
	runs      repository.Repository
	limits    LimitsStore
	resolver  ProfileResolver
	evaluator *rules.Evaluator
}

// NewService returns a run ingestion service.
func NewService(runs repository.Repository, limits LimitsStore, resolver ProfileResolver, evaluator *rules.Evaluator) *Service {
	return &Service{runs: runs, limits: limits, resolver: resolver, evaluator: evaluator}
}

// Submit evaluates and persists one measurement. The returned run carries the
// z-score, verdict, and violation list the evaluation produced.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.QcRun, error) {
	if err := req.Group.Validate(); err != nil {
		return nil, err
	}
	measuredAt := req.MeasuredAt
	if measuredAt.IsZero() {
		measuredAt = time.Now().UTC()
	}

	current, err := s.limits.CurrentLimits(ctx, req.Group)
	if err != nil {
		return nil, fmt.Errorf("load current limits: %w", err)
	}
	if current == nil {
		return nil, ErrNoCurrentLimits
	}
	limits := current.Limits()

	profile := s.resolver.Resolve(ctx, req.Group.DeviceCode, req.Group.TestCode, measuredAt)

	history, err := s.runs.HistoryBefore(ctx, req.Group, measuredAt, rules.HistoryLimit(profile))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	peerPoints, err := s.runs.PeersAt(ctx, req.Group, measuredAt)
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}
	peers := make(map[string]rules.PeerPoint, len(peerPoints))
	for _, p := range peerPoints {
		peers[p.LevelID] = rules.PeerPoint{LevelID: p.LevelID, Z: p.Z}
	}

	result := s.evaluator.Evaluate(req.Value, req.Group.Level, measuredAt, limits, history, peers, profile)

	violations := []byte("[]")
	if len(result.Violations) > 0 {
		violations, err = json.Marshal(result.Violations)
		if err != nil {
			return nil, fmt.Errorf("encode violations: %w", err)
		}
	}

	run := &domain.QcRun{
		ID:         uuid.NewString(),
		Group:      req.Group,
		Value:      req.Value,
		Z:          result.Z,
		Side:       result.Side,
		Status:     result.Status,
		AutoResult: result.AutoResult,
		Violations: violations,
		MeasuredAt: measuredAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("store run: %w", err)
	}
	return run, nil
}

// GetByID returns the run, or nil if not found.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.QcRun, error) {
	return s.runs.GetByID(ctx, id)
}

// List returns runs matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter repository.ListFilter) ([]*domain.QcRun, error) {
	return s.runs.List(ctx, filter)
}
