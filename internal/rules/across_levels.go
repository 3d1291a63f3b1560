package rules

import (
	"math"

	profiledomain "iqc-platform/internal/profile/domain"
)

// evalRangeR4s implements R-4s: the spread between same-run levels exceeds
// deltaSd (default 4). Operates only on points captured at the same run
// timestamp.
func evalRangeR4s(in Input, cfg profiledomain.RuleConfig) []Violation {
	points := in.runLevels()
	if len(points) < 2 {
		return nil
	}
	delta := 4.0
	if cfg.DeltaSD > 0 {
		delta = cfg.DeltaSD
	}

	minZ, maxZ := points[0].Z, points[0].Z
	levels := make([]string, 0, len(points))
	for _, p := range points {
		levels = append(levels, p.LevelID)
		minZ = math.Min(minZ, p.Z)
		maxZ = math.Max(maxZ, p.Z)
	}
	r := maxZ - minZ
	if r <= delta {
		return nil
	}
	return []Violation{{
		RuleCode: CodeR4s,
		Severity: severityOr(cfg, profiledomain.SeverityFail),
		Details: map[string]interface{}{
			"range":   r,
			"deltaSd": delta,
			"levels":  levels,
		},
	}}
}

// evalTwoOfThree implements 2of3-2s: with at least three same-run levels, two
// or more beyond thresholdSd (default 2) on any side.
func evalTwoOfThree(in Input, cfg profiledomain.RuleConfig) []Violation {
	points := in.runLevels()
	if len(points) < 3 {
		return nil
	}
	threshold := 2.0
	if cfg.ThresholdSD > 0 {
		threshold = cfg.ThresholdSD
	}

	var beyond []string
	for _, p := range points {
		if math.Abs(p.Z) > threshold {
			beyond = append(beyond, p.LevelID)
		}
	}
	if len(beyond) < 2 {
		return nil
	}
	return []Violation{{
		RuleCode: Code2of3,
		Severity: severityOr(cfg, profiledomain.SeverityFail),
		Details: map[string]interface{}{
			"thresholdSd": threshold,
			"levels":      beyond,
		},
	}}
}
