package rules

import (
	"sort"
	"time"

	profiledomain "iqc-platform/internal/profile/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// Rule codes of the built-in catalog.
const (
	Code13s   = "1-3s"
	Code12s   = "1-2s"
	Code22s   = "2-2s"
	CodeR4s   = "R-4s"
	Code41s   = "4-1s"
	Code31s   = "3-1s"
	Code10x   = "10x"
	Code6x    = "6x"
	Code8x    = "8x"
	Code12x   = "12x"
	Code7T    = "7T"
	CodeNxExt = "Nx_ext"
	Code2of3  = "2of3-2s"
)

// Violation records one rule firing. Details are diagnostic only and must
// never drive control flow.
type Violation struct {
	RuleCode   string                 `json:"ruleCode"`
	Severity   profiledomain.Severity `json:"severity"`
	WindowSize int                    `json:"windowSize,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Input carries everything a rule function may inspect. All sequences are
// ordered newest-first with the current point at index 0.
type Input struct {
	CurrentZ       *float64
	CurrentLevelID string
	Timestamp      time.Time
	// AllZ is [currentZ, ...historical z] newest-first; nil entries are
	// points whose z was undefined and break any consecutive match.
	AllZ []*float64
	// History is the historical series, newest-first, current level only.
	History []qcrundomain.QcDataPoint
	// Peers maps levelID to the same-run measurement of that level.
	Peers map[string]PeerPoint
	// Tolerance is the side-classification tolerance in use.
	Tolerance float64
	// WindowDefault is the profile's default window size.
	WindowDefault int
	Context       Context
}

// levelZ is one same-run point with a defined z, tagged with its level.
type levelZ struct {
	LevelID string
	Z       float64
}

// runLevels returns the current point plus all peers that carry a defined z,
// current first, peers in level order for deterministic output.
func (in Input) runLevels() []levelZ {
	out := make([]levelZ, 0, 1+len(in.Peers))
	if in.CurrentZ != nil {
		out = append(out, levelZ{LevelID: in.CurrentLevelID, Z: *in.CurrentZ})
	}
	keys := make([]string, 0, len(in.Peers))
	for k := range in.Peers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := in.Peers[k]
		if p.Z != nil {
			out = append(out, levelZ{LevelID: p.LevelID, Z: *p.Z})
		}
	}
	return out
}

// RuleFunc evaluates one rule against the input. A nil or empty result means
// the rule did not fire. Implementations must be pure.
type RuleFunc func(in Input, cfg profiledomain.RuleConfig) []Violation

var registry = map[string]RuleFunc{}

// Register adds a rule evaluator under the given code. New rule codes extend
// the registry without touching the orchestrator. Calling Register from
// multiple goroutines is not supported; register during init.
func Register(code string, fn RuleFunc) {
	registry[code] = fn
}

// Lookup returns the evaluator for a code, or nil for unknown codes.
func Lookup(code string) RuleFunc {
	return registry[code]
}

func init() {
	Register(Code13s, evalOneThreeS)
	Register(Code12s, evalOneTwoS)
	Register(Code22s, consecutiveBeyond(2, 2))
	Register(Code41s, consecutiveBeyond(4, 1))
	Register(Code31s, consecutiveBeyond(3, 1))
	Register(Code10x, sameSideRun(10))
	Register(Code6x, sameSideRun(6))
	Register(Code8x, sameSideRun(8))
	Register(Code12x, sameSideRun(12))
	Register(Code7T, evalTrend)
	Register(CodeNxExt, evalNxExt)
	Register(CodeR4s, evalRangeR4s)
	Register(Code2of3, evalTwoOfThree)
}

func severityOr(cfg profiledomain.RuleConfig, def profiledomain.Severity) profiledomain.Severity {
	if cfg.Severity == profiledomain.SeverityWarn || cfg.Severity == profiledomain.SeverityFail {
		return cfg.Severity
	}
	return def
}
