// Package service implements the rolling-window limits proposal engine.
package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"iqc-platform/internal/limits/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// Defaults for the eligibility guards. Injectable via NewService so deployments
// can tune them, but the defaults match established practice.
const (
	DefaultMinPoints   = 20
	DefaultMinSpanDays = 10
)

// DefaultExcludeRules are the violation codes that disqualify a point from a
// rolling window.
var DefaultExcludeRules = []string{"1-3s", "2-2s", "R-4s", "4-1s", "10x", "1-2s"}

// RunStore is the read-only view of the run history the engine needs.
type RunStore interface {
	// GroupExists reports whether any run was ever recorded for the group.
	GroupExists(ctx context.Context, group qcrundomain.RunGroup) (bool, error)
	// CurrentLimits returns the group's current limits version, or nil if the
	// group has none yet.
	CurrentLimits(ctx context.Context, group qcrundomain.RunGroup) (*domain.LimitsVersion, error)
	// EligibleRecent returns up to limit of the group's most recent in-control
	// points, newest first, skipping points that carry any of the given
	// violation codes.
	EligibleRecent(ctx context.Context, group qcrundomain.RunGroup, limit int, excludeRules []string) ([]domain.SamplePoint, error)
	// IncludedCount returns how many in-control points the group has in total,
	// before rule-code exclusion.
	IncludedCount(ctx context.Context, group qcrundomain.RunGroup) (int, error)
}

// Service computes rolling-window limits proposals. It never writes a new
// current limits record; adoption is a separate, human-approved step.
type Service struct {
	store        RunStore
	minPoints    int
	minSpanDays  int
	excludeRules []string
}

// NewService returns a proposal engine. Non-positive minPoints/minSpanDays and
// an empty excludeRules fall back to the defaults.
func NewService(store RunStore, minPoints, minSpanDays int, excludeRules []string) *Service {
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	if minSpanDays <= 0 {
		minSpanDays = DefaultMinSpanDays
	}
	if len(excludeRules) == 0 {
		excludeRules = DefaultExcludeRules
	}
	return &Service{store: store, minPoints: minPoints, minSpanDays: minSpanDays, excludeRules: excludeRules}
}

// ComputeProposal evaluates the group's recent in-control points and proposes
// new limits. An ineligible outcome is a normal result carrying reasons;
// store failures also surface as ineligible rather than a default guess.
func (s *Service) ComputeProposal(ctx context.Context, group qcrundomain.RunGroup, n int) domain.RollingProposal {
	if n <= 0 {
		n = s.minPoints
	}
	if n < s.minPoints {
		return ineligible(fmt.Sprintf("requested window n=%d is below the minimum of %d points", n, s.minPoints))
	}
	if err := group.Validate(); err != nil {
		return ineligible(fmt.Sprintf("invalid run group: %v", err))
	}

	exists, err := s.store.GroupExists(ctx, group)
	if err != nil {
		log.Printf("limits: run store unavailable for %s/%s/%s/%s: %v",
			group.DeviceCode, group.TestCode, group.Level, group.LotCode, err)
		return ineligible("run store unavailable")
	}
	if !exists {
		return ineligible("run group not found")
	}

	var current *qcrundomain.StatisticalLimits
	if cur, err := s.store.CurrentLimits(ctx, group); err != nil {
		// Comparison data only; its absence must not block the proposal.
		log.Printf("limits: current limits lookup failed, continuing without comparison: %v", err)
	} else if cur != nil {
		l := cur.Limits()
		current = &l
	}

	points, err := s.store.EligibleRecent(ctx, group, n, s.excludeRules)
	if err != nil {
		log.Printf("limits: eligible point fetch failed: %v", err)
		return ineligible("run store unavailable")
	}
	total, err := s.store.IncludedCount(ctx, group)
	if err != nil {
		log.Printf("limits: point count failed: %v", err)
		return ineligible("run store unavailable")
	}
	excluded := total - len(points)
	if excluded < 0 {
		excluded = 0
	}

	if len(points) == 0 {
		p := ineligible("no eligible in-control points for this group")
		p.ExcludedCount = excluded
		p.CurrentLimits = current
		return p
	}
	if len(points) < s.minPoints {
		p := ineligible(fmt.Sprintf("only %d eligible points, minimum is %d", len(points), s.minPoints))
		p.ExcludedCount = excluded
		p.CurrentLimits = current
		return p
	}

	// Points arrive newest first.
	newest := points[0].MeasuredAt
	oldest := points[len(points)-1].MeasuredAt
	window := &domain.ProposalWindow{
		N:        len(points),
		From:     oldest,
		To:       newest,
		SpanDays: spanDays(oldest, newest),
	}
	if window.SpanDays < s.minSpanDays {
		p := ineligible(fmt.Sprintf("eligible points span %d working days, minimum is %d", window.SpanDays, s.minSpanDays))
		p.Window = window
		p.ExcludedCount = excluded
		p.CurrentLimits = current
		return p
	}

	stats := computeStats(points)
	return domain.RollingProposal{
		Eligible:      true,
		Window:        window,
		Stats:         &stats,
		ExcludedCount: excluded,
		CurrentLimits: current,
	}
}

// ShouldSuggestProposal flags proposals that shift the mean by more than 10%
// of the current SD or change the CV by more than 20% relative. Advisory only.
func ShouldSuggestProposal(current *qcrundomain.StatisticalLimits, proposed *domain.ProposalStats) bool {
	if current == nil || proposed == nil {
		return false
	}
	if current.SD > 0 && math.Abs(proposed.Mean-current.Mean) > 0.10*current.SD {
		return true
	}
	if current.CV != 0 && math.Abs(proposed.CV-current.CV)/math.Abs(current.CV) > 0.20 {
		return true
	}
	return false
}

func ineligible(reason string) domain.RollingProposal {
	return domain.RollingProposal{Eligible: false, Reasons: []string{reason}}
}

func spanDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

func computeStats(points []domain.SamplePoint) domain.ProposalStats {
	n := float64(len(points))
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / n

	var sd float64
	if len(points) > 1 {
		var ss float64
		for _, p := range points {
			d := p.Value - mean
			ss += d * d
		}
		sd = math.Sqrt(ss / (n - 1))
	}

	var cv float64
	if mean != 0 {
		cv = sd / math.Abs(mean) * 100
	}
	return domain.ProposalStats{
		Mean: round(mean, 4),
		SD:   round(sd, 4),
		CV:   round(cv, 2),
	}
}

func round(x float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(x*f) / f
}
