package rules

import (
	"testing"

	profiledomain "iqc-platform/internal/profile/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

func TestOneThreeS_FiresOnlyBeyond3(t *testing.T) {
	profile := singleRuleProfile(Code13s, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})

	cases := []struct {
		z    float64
		want bool
	}{
		{3.01, true},
		{-3.01, true},
		{3.0, false},
		{-3.0, false},
		{2.99, false},
		{0, false},
	}
	for _, tc := range cases {
		res := evalOne(tc.z, nil, nil, profile)
		if got := hasViolation(res, Code13s); got != tc.want {
			t.Errorf("1-3s at z=%v fired=%v, want %v", tc.z, got, tc.want)
		}
	}

	// Independent of history length.
	res := evalOne(3.5, historyOf(0, 0, 0), nil, profile)
	if !hasViolation(res, Code13s) {
		t.Error("1-3s should fire regardless of history")
	}
}

func TestOneTwoS_WarnClass(t *testing.T) {
	profile := singleRuleProfile(Code12s, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})

	res := evalOne(2.5, nil, nil, profile)
	if !hasViolation(res, Code12s) {
		t.Fatal("1-2s should fire at z=2.5")
	}
	if res.Violations[0].Severity != profiledomain.SeverityWarn {
		t.Errorf("1-2s default severity = %q, want warn", res.Violations[0].Severity)
	}
	if res.AutoResult != qcrundomain.ResultWarn {
		t.Errorf("autoResult = %q, want warn", res.AutoResult)
	}

	if res := evalOne(2.0, nil, nil, profile); hasViolation(res, Code12s) {
		t.Error("1-2s must not fire at exactly z=2")
	}
}

func TestTwoTwoS_ConsecutiveBeyond(t *testing.T) {
	profile := singleRuleProfile(Code22s, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})

	cases := []struct {
		name    string
		current float64
		history []qcrundomain.QcDataPoint
		want    bool
	}{
		{"both above", 2.5, historyOf(2.3), true},
		{"both below", -2.5, historyOf(-2.3), true},
		{"opposite sides", 2.5, historyOf(-2.3), false},
		{"previous inside", 2.5, historyOf(1.9), false},
		{"exactly at threshold", 2.0, historyOf(2.5), false},
		{"no history", 2.5, nil, false}, // guard: sequence rule needs history
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evalOne(tc.current, tc.history, nil, profile)
			if got := hasViolation(res, Code22s); got != tc.want {
				t.Errorf("2-2s fired=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestTwoTwoS_AcrossLevelsExtension(t *testing.T) {
	cfg := profiledomain.RuleConfig{
		Enabled:               true,
		Scope:                 profiledomain.ScopeWithinLevel,
		WithinRunAcrossLevels: true,
	}
	profile := singleRuleProfile(Code22s, cfg)

	// Current and one peer both beyond +2: the extension fires even though
	// the within-level sequence (current + history) does not.
	peers := map[string]PeerPoint{"L2": {LevelID: "L2", Z: fptr(2.4)}}
	res := evalOne(2.6, historyOf(0.5), peers, profile)
	if !hasViolation(res, Code22s) {
		t.Fatal("2-2s across-levels extension should fire")
	}
	v := res.Violations[0]
	if v.Details["acrossLevels"] != true {
		t.Errorf("violation should be tagged acrossLevels, got %v", v.Details)
	}

	// Opposite sides: no extension violation.
	peers = map[string]PeerPoint{"L2": {LevelID: "L2", Z: fptr(-2.4)}}
	res = evalOne(2.6, historyOf(0.5), peers, profile)
	if hasViolation(res, Code22s) {
		t.Error("2-2s extension must not fire for opposite sides")
	}
}

func TestTwoTwoS_ExtensionInAdditionToSequence(t *testing.T) {
	cfg := profiledomain.RuleConfig{
		Enabled:               true,
		Scope:                 profiledomain.ScopeWithinLevel,
		WithinRunAcrossLevels: true,
	}
	profile := singleRuleProfile(Code22s, cfg)

	peers := map[string]PeerPoint{"L2": {LevelID: "L2", Z: fptr(2.4)}}
	res := evalOne(2.6, historyOf(2.3), peers, profile)

	// Within-level sequence and across-level extension both fire.
	count := 0
	for _, v := range res.Violations {
		if v.RuleCode == Code22s {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 distinct 2-2s violations, got %d", count)
	}
}

func TestFourOneS_And_ThreeOneS(t *testing.T) {
	p41 := singleRuleProfile(Code41s, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})
	if res := evalOne(1.2, historyOf(1.1, 1.3, 1.5), nil, p41); !hasViolation(res, Code41s) {
		t.Error("4-1s should fire: four consecutive beyond +1")
	}
	if res := evalOne(1.2, historyOf(1.1, 0.9, 1.5), nil, p41); hasViolation(res, Code41s) {
		t.Error("4-1s must not fire: one of four inside +1")
	}
	if res := evalOne(-1.2, historyOf(-1.1, -1.3, -1.5), nil, p41); !hasViolation(res, Code41s) {
		t.Error("4-1s should fire on the low side")
	}

	p31 := singleRuleProfile(Code31s, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})
	if res := evalOne(1.2, historyOf(1.1, 1.3), nil, p31); !hasViolation(res, Code31s) {
		t.Error("3-1s should fire: three consecutive beyond +1")
	}
	if res := evalOne(1.2, historyOf(1.1, -1.3), nil, p31); hasViolation(res, Code31s) {
		t.Error("3-1s must not fire when sides mix")
	}
}

func TestSameSideRuns(t *testing.T) {
	p10 := singleRuleProfile(Code10x, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})

	nine := []float64{0.3, 0.5, 0.2, 0.8, 0.4, 0.6, 0.1, 0.9, 0.7}
	if res := evalOne(0.5, historyOf(nine...), nil, p10); !hasViolation(res, Code10x) {
		t.Error("10x should fire: ten consecutive above the mean")
	}
	mixed := append([]float64{}, nine...)
	mixed[4] = -0.4
	if res := evalOne(0.5, historyOf(mixed...), nil, p10); hasViolation(res, Code10x) {
		t.Error("10x must not fire with a point on the other side")
	}
	onMean := append([]float64{}, nine...)
	onMean[4] = 0.0 // "on" breaks the streak
	if res := evalOne(0.5, historyOf(onMean...), nil, p10); hasViolation(res, Code10x) {
		t.Error("10x must not fire with an on-mean point in the streak")
	}

	p6 := singleRuleProfile(Code6x, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})
	if res := evalOne(-0.5, historyOf(-0.3, -0.6, -0.2, -0.4, -0.1), nil, p6); !hasViolation(res, Code6x) {
		t.Error("6x should fire: six consecutive below")
	}
}

func TestSevenT_Trend(t *testing.T) {
	profile := singleRuleProfile(Code7T, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})

	// Strictly increasing in time: newest (current) is largest.
	if res := evalOne(0.7, historyOf(0.6, 0.5, 0.4, 0.3, 0.2, 0.1), nil, profile); !hasViolation(res, Code7T) {
		t.Error("7T should fire on a strictly increasing drift")
	}
	if res := evalOne(-0.7, historyOf(-0.6, -0.5, -0.4, -0.3, -0.2, -0.1), nil, profile); !hasViolation(res, Code7T) {
		t.Error("7T should fire on a strictly decreasing drift")
	}
	// A plateau breaks strict monotonicity.
	if res := evalOne(0.7, historyOf(0.6, 0.6, 0.4, 0.3, 0.2, 0.1), nil, profile); hasViolation(res, Code7T) {
		t.Error("7T must not fire with equal neighbours")
	}
	if res := evalOne(0.7, historyOf(0.6, 0.5, 0.4, 0.3, 0.2), nil, profile); hasViolation(res, Code7T) {
		t.Error("7T must not fire with only six points")
	}
}

func TestNxExt_FirstMatchingNWins(t *testing.T) {
	cfg := profiledomain.RuleConfig{
		Enabled: true,
		Scope:   profiledomain.ScopeWithinLevel,
		NSet:    []int{8, 9, 10, 12},
	}
	profile := singleRuleProfile(CodeNxExt, cfg)

	// Nine consecutive points above the mean: both N=8 and N=9 match, but the
	// first N in the configured order must be reported.
	res := evalOne(0.5, historyOf(0.4, 0.6, 0.3, 0.7, 0.2, 0.8, 0.1, 0.9), nil, profile)
	if !hasViolation(res, CodeNxExt) {
		t.Fatal("Nx_ext should fire")
	}
	if got := res.Violations[0].WindowSize; got != 8 {
		t.Errorf("Nx_ext reported N=%d, want 8 (first match in listed order)", got)
	}
}

func TestNxExt_ListedOrderIsNotSorted(t *testing.T) {
	// nSet deliberately out of numeric order: the listed order still wins.
	cfg := profiledomain.RuleConfig{
		Enabled: true,
		Scope:   profiledomain.ScopeWithinLevel,
		NSet:    []int{9, 8},
	}
	profile := singleRuleProfile(CodeNxExt, cfg)

	res := evalOne(0.5, historyOf(0.4, 0.6, 0.3, 0.7, 0.2, 0.8, 0.1, 0.9), nil, profile)
	if !hasViolation(res, CodeNxExt) {
		t.Fatal("Nx_ext should fire")
	}
	if got := res.Violations[0].WindowSize; got != 9 {
		t.Errorf("Nx_ext reported N=%d, want 9 (first entry in nSet)", got)
	}
}

func TestNxExt_MergedAcrossLevelsOrTime(t *testing.T) {
	cfg := profiledomain.RuleConfig{
		Enabled: true,
		Scope:   profiledomain.ScopeAcrossLevelsOrTime,
		NSet:    []int{4},
		Window:  12,
	}
	profile := singleRuleProfile(CodeNxExt, cfg)

	// Current + one same-run peer + two historical points, all above the
	// mean: the merged sequence has four consecutive same-side entries.
	peers := map[string]PeerPoint{"L2": {LevelID: "L2", Z: fptr(0.4)}}
	res := evalOne(0.5, historyOf(0.3, 0.6), peers, profile)
	if !hasViolation(res, CodeNxExt) {
		t.Fatal("Nx_ext across_levels_or_time should fire on the merged sequence")
	}
	if got := res.Violations[0].WindowSize; got != 4 {
		t.Errorf("Nx_ext reported N=%d, want 4", got)
	}

	// Peer on the other side breaks the merged streak.
	peers = map[string]PeerPoint{"L2": {LevelID: "L2", Z: fptr(-0.4)}}
	res = evalOne(0.5, historyOf(0.3, 0.6), peers, profile)
	if hasViolation(res, CodeNxExt) {
		t.Error("Nx_ext must not fire when the merged sequence mixes sides")
	}
}

func TestUndefinedZBreaksSequences(t *testing.T) {
	profile := singleRuleProfile(Code22s, profiledomain.RuleConfig{Enabled: true, Scope: profiledomain.ScopeWithinLevel})

	history := historyOf(2.5)
	history[0].Z = nil // z undefined on the previous point
	res := evalOne(2.6, history, nil, profile)
	if hasViolation(res, Code22s) {
		t.Error("2-2s must not fire across a point with undefined z")
	}
}
