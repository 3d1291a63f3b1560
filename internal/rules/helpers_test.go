package rules

import (
	"time"

	profiledomain "iqc-platform/internal/profile/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

var testBase = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func fptr(f float64) *float64 { return &f }

// historyOf builds a newest-first historical series from z values, one point
// per day walking backwards from testBase.
func historyOf(zs ...float64) []qcrundomain.QcDataPoint {
	out := make([]qcrundomain.QcDataPoint, len(zs))
	for i, z := range zs {
		zz := z
		out[i] = qcrundomain.QcDataPoint{
			ID:        "h" + string(rune('a'+i)),
			Z:         &zz,
			Side:      DetermineSide(z, DefaultSideTolerance),
			Timestamp: testBase.Add(-time.Duration(i+1) * 24 * time.Hour),
			LevelID:   "L1",
		}
	}
	return out
}

// singleRuleProfile wraps one rule config into a profile.
func singleRuleProfile(code string, cfg profiledomain.RuleConfig) profiledomain.RulesProfile {
	return profiledomain.RulesProfile{
		WindowSizeDefault: 12,
		Rules:             map[string]profiledomain.RuleConfig{code: cfg},
	}
}

// evalOne runs the default evaluator with limits mean=0 sd=1, so value == z.
func evalOne(value float64, history []qcrundomain.QcDataPoint, peers map[string]PeerPoint, profile profiledomain.RulesProfile) EvaluationResult {
	e := NewEvaluator(DefaultSideTolerance, false)
	return e.Evaluate(value, "L1", testBase, qcrundomain.StatisticalLimits{Mean: 0, SD: 1}, history, peers, profile)
}

func hasViolation(res EvaluationResult, code string) bool {
	for _, v := range res.Violations {
		if v.RuleCode == code {
			return true
		}
	}
	return false
}
