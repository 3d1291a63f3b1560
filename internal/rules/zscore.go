// Package rules implements the Westgard statistical rule-evaluation engine.
// Everything in this package is a pure function of its inputs: no I/O, no
// shared mutable state, safe for concurrent use.
package rules

import (
	"math"

	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// DefaultSideTolerance is the z band around the mean classified as "on".
// It absorbs floating-point noise near the target value.
const DefaultSideTolerance = 0.05

// ComputeZ returns the z-score of value against mean/sd, or nil when the
// score is undefined (sd <= 0 or any non-finite input). Numeric edge cases
// degrade to nil, never panic.
func ComputeZ(value, mean, sd float64) *float64 {
	if sd <= 0 {
		return nil
	}
	if !finite(value) || !finite(mean) || !finite(sd) {
		return nil
	}
	z := (value - mean) / sd
	if !finite(z) {
		return nil
	}
	return &z
}

// DetermineSide classifies a z-score as above, below, or on the mean.
// tolerance <= 0 falls back to DefaultSideTolerance.
func DetermineSide(z, tolerance float64) qcrundomain.Side {
	if tolerance <= 0 {
		tolerance = DefaultSideTolerance
	}
	switch {
	case z > tolerance:
		return qcrundomain.SideAbove
	case z < -tolerance:
		return qcrundomain.SideBelow
	default:
		return qcrundomain.SideOn
	}
}

// SameSide reports whether two z-scores fall strictly on the same side of the
// mean. Points classified "on" never share a side with anything.
func SameSide(z1, z2, tolerance float64) bool {
	s1 := DetermineSide(z1, tolerance)
	s2 := DetermineSide(z2, tolerance)
	return s1 == s2 && s1 != qcrundomain.SideOn
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
