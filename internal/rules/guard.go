package rules

import (
	profiledomain "iqc-platform/internal/profile/domain"
)

// sequenceRules are within-level rules that need at least one historical
// point to form a sequence. Single-point rules (1-3s, 1-2s) are absent: they
// are always eligible within their level.
var sequenceRules = map[string]bool{
	Code22s:   true,
	Code41s:   true,
	Code31s:   true,
	Code10x:   true,
	Code6x:    true,
	Code8x:    true,
	Code12x:   true,
	Code7T:    true,
	CodeNxExt: true,
}

// Eligible decides whether a configured rule applies in the given context.
// It must run before dispatching to any evaluator; evaluators assume
// eligibility already holds.
func Eligible(code string, cfg profiledomain.RuleConfig, ctx Context) bool {
	if !cfg.Enabled {
		return false
	}
	if n, ok := cfg.RequiredLevels.Int(); ok && n > len(ctx.AvailableLevels) {
		return false
	}
	switch cfg.Scope {
	case profiledomain.ScopeAcrossLevels:
		return ctx.HasMultipleLevelsInGroup
	case profiledomain.ScopeEither, profiledomain.ScopeAcrossLevelsOrTime:
		return ctx.HasHistoricalSeries || ctx.HasMultipleLevelsInGroup
	default:
		// within_level, and unknown scopes degrade to within-level semantics
		if sequenceRules[code] {
			return ctx.HasHistoricalSeries
		}
		return true
	}
}
