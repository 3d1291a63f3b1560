package rules

import (
	"math"

	profiledomain "iqc-platform/internal/profile/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// evalOneThreeS fires when the current point is beyond 3 SD on either side.
// Independent of history.
func evalOneThreeS(in Input, cfg profiledomain.RuleConfig) []Violation {
	if in.CurrentZ == nil || math.Abs(*in.CurrentZ) <= 3 {
		return nil
	}
	return []Violation{{
		RuleCode: Code13s,
		Severity: severityOr(cfg, profiledomain.SeverityFail),
		Details:  map[string]interface{}{"z": *in.CurrentZ},
	}}
}

// evalOneTwoS fires when the current point is beyond 2 SD on either side.
// Classically a warning that triggers inspection of the other rules.
func evalOneTwoS(in Input, cfg profiledomain.RuleConfig) []Violation {
	if in.CurrentZ == nil || math.Abs(*in.CurrentZ) <= 2 {
		return nil
	}
	return []Violation{{
		RuleCode: Code12s,
		Severity: severityOr(cfg, profiledomain.SeverityWarn),
		Details:  map[string]interface{}{"z": *in.CurrentZ},
	}}
}

// consecutiveBeyond builds the n-consecutive-beyond-threshold family
// (2-2s, 4-1s, 3-1s): the most recent window entries must all exceed +t or
// all fall below -t. For 2-2s the within-run-across-levels extension is
// checked in addition to, not instead of, the within-level sequence.
func consecutiveBeyond(defaultWindow int, defaultThreshold float64) RuleFunc {
	return func(in Input, cfg profiledomain.RuleConfig) []Violation {
		window := defaultWindow
		if cfg.Window > 0 {
			window = cfg.Window
		}
		threshold := defaultThreshold
		if cfg.ThresholdSD > 0 {
			threshold = cfg.ThresholdSD
		}
		code := codeForConsecutive(defaultWindow, defaultThreshold)

		var out []Violation
		if side, ok := runBeyond(in.AllZ, window, threshold); ok {
			out = append(out, Violation{
				RuleCode:   code,
				Severity:   severityOr(cfg, profiledomain.SeverityFail),
				WindowSize: window,
				Details:    map[string]interface{}{"side": side, "threshold": threshold},
			})
		}

		if code == Code22s && cfg.WithinRunAcrossLevels && len(in.Peers) > 0 {
			if v := acrossLevelPair(in, cfg, threshold); v != nil {
				out = append(out, *v)
			}
		}
		return out
	}
}

func codeForConsecutive(window int, threshold float64) string {
	switch {
	case window == 2 && threshold == 2:
		return Code22s
	case window == 4 && threshold == 1:
		return Code41s
	default:
		return Code31s
	}
}

// runBeyond reports whether the most recent window entries of seq are all
// beyond the threshold on one common side. Entries with undefined z break the
// run.
func runBeyond(seq []*float64, window int, threshold float64) (qcrundomain.Side, bool) {
	if window < 1 || len(seq) < window {
		return "", false
	}
	allAbove, allBelow := true, true
	for _, z := range seq[:window] {
		if z == nil {
			return "", false
		}
		if *z <= threshold {
			allAbove = false
		}
		if *z >= -threshold {
			allBelow = false
		}
	}
	switch {
	case allAbove:
		return qcrundomain.SideAbove, true
	case allBelow:
		return qcrundomain.SideBelow, true
	default:
		return "", false
	}
}

// acrossLevelPair implements the 2-2s within-run-across-levels extension:
// two or more same-run levels beyond the threshold on the same side.
func acrossLevelPair(in Input, cfg profiledomain.RuleConfig, threshold float64) *Violation {
	var above, below []string
	for _, lv := range in.runLevels() {
		if lv.Z > threshold {
			above = append(above, lv.LevelID)
		} else if lv.Z < -threshold {
			below = append(below, lv.LevelID)
		}
	}
	side := qcrundomain.SideAbove
	levels := above
	if len(below) > len(above) {
		side = qcrundomain.SideBelow
		levels = below
	}
	if len(levels) < 2 {
		return nil
	}
	return &Violation{
		RuleCode: Code22s,
		Severity: severityOr(cfg, profiledomain.SeverityFail),
		Details: map[string]interface{}{
			"acrossLevels": true,
			"side":         side,
			"levels":       levels,
			"threshold":    threshold,
		},
	}
}

// sameSideRun builds the n-consecutive-same-side family (10x, 6x, 8x, 12x):
// a pure sign test over the most recent n entries, no threshold.
func sameSideRun(defaultN int) RuleFunc {
	return func(in Input, cfg profiledomain.RuleConfig) []Violation {
		n := defaultN
		if cfg.N > 0 {
			n = cfg.N
		}
		side, ok := sameSideStreak(in.AllZ, n, in.Tolerance)
		if !ok {
			return nil
		}
		return []Violation{{
			RuleCode:   codeForSameSide(defaultN),
			Severity:   severityOr(cfg, profiledomain.SeverityFail),
			WindowSize: n,
			Details:    map[string]interface{}{"side": side},
		}}
	}
}

func codeForSameSide(n int) string {
	switch n {
	case 6:
		return Code6x
	case 8:
		return Code8x
	case 12:
		return Code12x
	default:
		return Code10x
	}
}

// sameSideStreak reports whether the most recent n entries all classify as
// above, or all as below. "on" entries and undefined z break the streak.
func sameSideStreak(seq []*float64, n int, tolerance float64) (qcrundomain.Side, bool) {
	if n < 1 || len(seq) < n {
		return "", false
	}
	var side qcrundomain.Side
	for i, z := range seq[:n] {
		if z == nil {
			return "", false
		}
		s := DetermineSide(*z, tolerance)
		if s == qcrundomain.SideOn {
			return "", false
		}
		if i == 0 {
			side = s
		} else if s != side {
			return "", false
		}
	}
	return side, true
}

// evalTrend implements 7T: the most recent n entries form a strictly
// monotonic sequence (a drift in either direction).
func evalTrend(in Input, cfg profiledomain.RuleConfig) []Violation {
	n := 7
	if cfg.N > 0 {
		n = cfg.N
	}
	dir, ok := strictTrend(in.AllZ, n)
	if !ok {
		return nil
	}
	return []Violation{{
		RuleCode:   Code7T,
		Severity:   severityOr(cfg, profiledomain.SeverityWarn),
		WindowSize: n,
		Details:    map[string]interface{}{"direction": dir},
	}}
}

// strictTrend checks strict monotonicity over the most recent n entries.
// seq is newest-first, so "increasing" means each entry exceeds the one that
// came before it in time, i.e. seq[i] > seq[i+1].
func strictTrend(seq []*float64, n int) (string, bool) {
	if n < 2 || len(seq) < n {
		return "", false
	}
	increasing, decreasing := true, true
	for i := 0; i < n; i++ {
		if seq[i] == nil {
			return "", false
		}
	}
	for i := 0; i < n-1; i++ {
		if *seq[i] <= *seq[i+1] {
			increasing = false
		}
		if *seq[i] >= *seq[i+1] {
			decreasing = false
		}
	}
	switch {
	case increasing:
		return "increasing", true
	case decreasing:
		return "decreasing", true
	default:
		return "", false
	}
}

// evalNxExt implements the extended multi-N rule. The configured nSet is
// tested in its given order and the first matching N is reported; a later,
// larger N that would also match is never reported. This ordering is part of
// the rule's contract and must not be optimized away.
func evalNxExt(in Input, cfg profiledomain.RuleConfig) []Violation {
	if len(cfg.NSet) == 0 {
		return nil
	}

	seq := in.AllZ
	if cfg.Scope == profiledomain.ScopeAcrossLevelsOrTime {
		seq = mergedRunAndHistory(in, cfg.Window)
	}

	for _, n := range cfg.NSet {
		side, ok := sameSideStreak(seq, n, in.Tolerance)
		if !ok {
			continue
		}
		return []Violation{{
			RuleCode:   CodeNxExt,
			Severity:   severityOr(cfg, profiledomain.SeverityFail),
			WindowSize: n,
			Details:    map[string]interface{}{"n": n, "side": side, "scope": string(cfg.Scope)},
		}}
	}
	return nil
}

// mergedRunAndHistory builds the across_levels_or_time sequence for Nx_ext:
// the current point and its same-timestamp peers merged with the historical
// series, sorted by timestamp descending and truncated to window.
func mergedRunAndHistory(in Input, window int) []*float64 {
	if window <= 0 {
		window = in.WindowDefault
	}

	run := make([]seqItem, 0, 1+len(in.Peers))
	run = append(run, seqItem{Z: in.CurrentZ, TS: in.Timestamp})
	for _, lv := range in.runLevels() {
		if lv.LevelID == in.CurrentLevelID {
			continue
		}
		z := lv.Z
		run = append(run, seqItem{Z: &z, TS: in.Timestamp})
	}

	hist := make([]seqItem, 0, len(in.History))
	for _, p := range in.History {
		hist = append(hist, seqItem{Z: p.Z, TS: p.Timestamp})
	}

	merged := mergeSeries(window, run, hist)
	out := make([]*float64, len(merged))
	for i, it := range merged {
		out[i] = it.Z
	}
	return out
}
