package rules

import (
	"sort"
	"time"

	profiledomain "iqc-platform/internal/profile/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// EvaluationResult is the full outcome of evaluating one QC measurement.
type EvaluationResult struct {
	Z          *float64               `json:"z"`
	Side       qcrundomain.Side       `json:"side"`
	Status     qcrundomain.RunStatus  `json:"status"`
	AutoResult qcrundomain.AutoResult `json:"autoResult"`
	Violations []Violation            `json:"violations"`
}

// Evaluator orchestrates rule evaluation. It is a pure function of its
// inputs and holds no state between calls.
type Evaluator struct {
	sideTolerance float64
	// approvalGate forces status to pending on every evaluation so that only
	// a human transitions a clinical run; the engine never auto-approves or
	// auto-rejects when the gate is on.
	approvalGate bool
}

// NewEvaluator returns an Evaluator with the given side tolerance
// (<= 0 means DefaultSideTolerance) and approval-gate setting.
func NewEvaluator(sideTolerance float64, approvalGate bool) *Evaluator {
	if sideTolerance <= 0 {
		sideTolerance = DefaultSideTolerance
	}
	return &Evaluator{sideTolerance: sideTolerance, approvalGate: approvalGate}
}

// Evaluate computes the z-score of value against limits, runs every eligible
// rule of the profile, and derives the verdict. history must be ordered
// newest-first; peers hold same-timestamp measurements from other levels and
// may be nil.
func (e *Evaluator) Evaluate(
	value float64,
	levelID string,
	measuredAt time.Time,
	limits qcrundomain.StatisticalLimits,
	history []qcrundomain.QcDataPoint,
	peers map[string]PeerPoint,
	profile profiledomain.RulesProfile,
) EvaluationResult {
	z := ComputeZ(value, limits.Mean, limits.SD)
	zOrZero := 0.0
	if z != nil {
		zOrZero = *z
	}
	side := DetermineSide(zOrZero, e.sideTolerance)
	ctx := BuildContext(levelID, history, peers)

	allZ := make([]*float64, 0, 1+len(history))
	allZ = append(allZ, z)
	for _, p := range history {
		allZ = append(allZ, p.Z)
	}

	in := Input{
		CurrentZ:       z,
		CurrentLevelID: levelID,
		Timestamp:      measuredAt,
		AllZ:           allZ,
		History:        history,
		Peers:          peers,
		Tolerance:      e.sideTolerance,
		WindowDefault:  profile.WindowSizeDefault,
		Context:        ctx,
	}

	// Profile rules live in a map; iterate in sorted code order so the
	// violation list is deterministic for identical inputs.
	codes := make([]string, 0, len(profile.Rules))
	for code := range profile.Rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var violations []Violation
	for _, code := range codes {
		cfg := profile.Rules[code]
		if !Eligible(code, cfg, ctx) {
			continue
		}
		fn := Lookup(code)
		if fn == nil {
			continue
		}
		violations = append(violations, fn(in, cfg)...)
	}

	auto := deriveAutoResult(violations)
	return EvaluationResult{
		Z:          z,
		Side:       side,
		Status:     e.deriveStatus(auto),
		AutoResult: auto,
		Violations: violations,
	}
}

// deriveAutoResult folds violations into the verdict. Fail strictly dominates
// warn: a mixed set always reports fail.
func deriveAutoResult(violations []Violation) qcrundomain.AutoResult {
	result := qcrundomain.ResultPass
	for _, v := range violations {
		switch v.Severity {
		case profiledomain.SeverityFail:
			return qcrundomain.ResultFail
		case profiledomain.SeverityWarn:
			result = qcrundomain.ResultWarn
		}
	}
	return result
}

// deriveStatus computes the legacy lifecycle field. With the approval gate on
// every run is pending regardless of the verdict; legacy mode derives the
// status directly from it.
func (e *Evaluator) deriveStatus(auto qcrundomain.AutoResult) qcrundomain.RunStatus {
	if e.approvalGate {
		return qcrundomain.StatusPending
	}
	switch auto {
	case qcrundomain.ResultFail:
		return qcrundomain.StatusRejected
	case qcrundomain.ResultWarn:
		return qcrundomain.StatusPending
	default:
		return qcrundomain.StatusAccepted
	}
}

// HistoryLimit returns how many historical points evaluation can consume for
// the given profile: the default window or the largest window any configured
// rule needs, whichever is bigger.
func HistoryLimit(profile profiledomain.RulesProfile) int {
	// Implicit window of each sequence rule when the profile does not override it.
	implicit := map[string]int{
		Code22s: 2, Code31s: 3, Code41s: 4, Code6x: 6, Code7T: 7,
		Code8x: 8, Code10x: 10, Code12x: 12,
	}
	limit := profile.WindowSizeDefault
	for code, cfg := range profile.Rules {
		if !cfg.Enabled {
			continue
		}
		if n := implicit[code]; n > limit && cfg.N == 0 {
			limit = n
		}
		if cfg.N > limit {
			limit = cfg.N
		}
		if cfg.Window > limit {
			limit = cfg.Window
		}
		for _, n := range cfg.NSet {
			if n > limit {
				limit = n
			}
		}
	}
	if limit <= 0 {
		limit = 12
	}
	return limit
}
