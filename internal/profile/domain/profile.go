package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity of a rule violation.
type Severity string

const (
	SeverityWarn Severity = "warn"
	SeverityFail Severity = "fail"
)

// Scope declares which evaluation family a rule belongs to.
type Scope string

const (
	ScopeWithinLevel        Scope = "within_level"
	ScopeAcrossLevels       Scope = "across_levels"
	ScopeEither             Scope = "either"
	ScopeAcrossLevelsOrTime Scope = "across_levels_or_time"
)

// RequiredLevels is the minimum number of distinct control levels a rule
// needs, stored as a string for compatibility with loosely-typed profile
// documents ("2" and 2 are both accepted).
type RequiredLevels string

// UnmarshalJSON accepts a JSON string or number.
func (r *RequiredLevels) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*r = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*r = RequiredLevels(v)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = RequiredLevels(strconv.Itoa(int(n)))
	return nil
}

// Int parses the required level count. ok is false when the value is empty or
// not a number; callers skip the level check in that case.
func (r RequiredLevels) Int() (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(string(r)))
	if err != nil {
		return 0, false
	}
	return v, true
}

// RuleConfig is the configuration of one rule inside a profile.
// Zero values mean "use the rule's built-in default" for the numeric fields.
type RuleConfig struct {
	Enabled               bool           `json:"enabled"`
	Severity              Severity       `json:"severity,omitempty"`
	RequiredLevels        RequiredLevels `json:"requiredLevels,omitempty"`
	Scope                 Scope          `json:"scope,omitempty"`
	WithinRunAcrossLevels bool           `json:"withinRunAcrossLevels,omitempty"`
	AcrossRuns            bool           `json:"acrossRuns,omitempty"`
	N                     int            `json:"n,omitempty"`
	NSet                  []int          `json:"nSet,omitempty"`
	DeltaSD               float64        `json:"deltaSd,omitempty"`
	ThresholdSD           float64        `json:"thresholdSd,omitempty"`
	Window                int            `json:"window,omitempty"`
}

// Validate checks structural sanity of a single rule entry.
func (c RuleConfig) Validate() error {
	switch c.Severity {
	case "", SeverityWarn, SeverityFail:
	default:
		return fmt.Errorf("unknown severity %q", c.Severity)
	}
	switch c.Scope {
	case "", ScopeWithinLevel, ScopeAcrossLevels, ScopeEither, ScopeAcrossLevelsOrTime:
	default:
		return fmt.Errorf("unknown scope %q", c.Scope)
	}
	if c.N < 0 || c.Window < 0 {
		return fmt.Errorf("n and window must not be negative")
	}
	for _, n := range c.NSet {
		if n < 1 {
			return fmt.Errorf("nSet entries must be >= 1, got %d", n)
		}
	}
	if c.DeltaSD < 0 || c.ThresholdSD < 0 {
		return fmt.Errorf("deltaSd and thresholdSd must not be negative")
	}
	return nil
}

// RulesProfile is a named, validated set of rule configurations.
type RulesProfile struct {
	ID                string                `json:"id,omitempty"`
	Name              string                `json:"name,omitempty"`
	WindowSizeDefault int                   `json:"windowSizeDefault"`
	Rules             map[string]RuleConfig `json:"rules"`
}

// EnabledCount returns the number of enabled rules.
func (p *RulesProfile) EnabledCount() int {
	n := 0
	for _, c := range p.Rules {
		if c.Enabled {
			n++
		}
	}
	return n
}

// ParseResult is the outcome of parsing a stored profile document.
type ParseResult struct {
	Profile RulesProfile
	// Dropped lists rule codes whose entries failed structural validation and
	// were removed; the rest of the profile stays usable.
	Dropped []string
}

// ParseProfileConfig parses a stored profile JSON document, dropping malformed
// individual rule entries rather than rejecting the whole profile. An error is
// returned only when the document itself is unreadable.
func ParseProfileConfig(raw []byte) (*ParseResult, error) {
	var outer struct {
		WindowSizeDefault json.Number                `json:"windowSizeDefault"`
		Rules             map[string]json.RawMessage `json:"rules"`
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&outer); err != nil {
		return nil, fmt.Errorf("profile config: %w", err)
	}

	res := &ParseResult{Profile: RulesProfile{Rules: make(map[string]RuleConfig, len(outer.Rules))}}

	if outer.WindowSizeDefault != "" {
		if f, err := outer.WindowSizeDefault.Float64(); err == nil && f > 0 {
			res.Profile.WindowSizeDefault = int(f)
		}
	}

	for code, entry := range outer.Rules {
		var cfg RuleConfig
		if err := json.Unmarshal(entry, &cfg); err != nil {
			res.Dropped = append(res.Dropped, code)
			continue
		}
		if err := cfg.Validate(); err != nil {
			res.Dropped = append(res.Dropped, code)
			continue
		}
		res.Profile.Rules[code] = cfg
	}
	return res, nil
}

// DefaultProfile returns the built-in rule profile used when no binding
// matches, the configuration store is unreachable, or profile-based
// configuration is disabled. Resolution is fail-open: evaluation must always
// have a profile to run against.
func DefaultProfile() RulesProfile {
	return RulesProfile{
		Name:              "builtin-default",
		WindowSizeDefault: 12,
		Rules: map[string]RuleConfig{
			"1-3s": {Enabled: true, Severity: SeverityFail, Scope: ScopeWithinLevel},
			"1-2s": {Enabled: true, Severity: SeverityWarn, Scope: ScopeWithinLevel},
			"2-2s": {Enabled: true, Severity: SeverityFail, Scope: ScopeWithinLevel, WithinRunAcrossLevels: true},
			"R-4s": {Enabled: true, Severity: SeverityFail, Scope: ScopeAcrossLevels, RequiredLevels: "2"},
			"4-1s": {Enabled: true, Severity: SeverityFail, Scope: ScopeWithinLevel},
			"10x":  {Enabled: true, Severity: SeverityFail, Scope: ScopeWithinLevel},
			"7T":   {Enabled: true, Severity: SeverityWarn, Scope: ScopeWithinLevel},

			"2of3-2s": {Enabled: false, Severity: SeverityFail, Scope: ScopeAcrossLevels, RequiredLevels: "3"},
			"3-1s":    {Enabled: false, Severity: SeverityFail, Scope: ScopeWithinLevel},
			"6x":      {Enabled: false, Severity: SeverityFail, Scope: ScopeWithinLevel},
		},
	}
}

// ScopeType ranks how specific a profile binding is.
type ScopeType string

const (
	ScopeTypeDeviceTest ScopeType = "device_test"
	ScopeTypeTest       ScopeType = "test"
	ScopeTypeDevice     ScopeType = "device"
	ScopeTypeGlobal     ScopeType = "global"
)

// Priority returns the resolution rank of the scope; lower wins.
// Unknown scopes rank after global so they never shadow valid bindings.
func (s ScopeType) Priority() int {
	switch s {
	case ScopeTypeDeviceTest:
		return 1
	case ScopeTypeTest:
		return 2
	case ScopeTypeDevice:
		return 3
	case ScopeTypeGlobal:
		return 4
	default:
		return 5
	}
}

// ProfileBinding attaches a profile to a scope for a time window.
// Nil ActiveFrom/ActiveTo mean open-ended.
type ProfileBinding struct {
	ID         string     `json:"id"`
	ProfileID  string     `json:"profileId"`
	ScopeType  ScopeType  `json:"scopeType"`
	TestID     string     `json:"testId,omitempty"`
	DeviceID   string     `json:"deviceId,omitempty"`
	ActiveFrom *time.Time `json:"activeFrom,omitempty"`
	ActiveTo   *time.Time `json:"activeTo,omitempty"`
}

// Matches reports whether the binding applies to the given device/test at the
// given instant.
func (b ProfileBinding) Matches(deviceID, testID string, at time.Time) bool {
	switch b.ScopeType {
	case ScopeTypeDeviceTest:
		if b.DeviceID != deviceID || b.TestID != testID {
			return false
		}
	case ScopeTypeTest:
		if b.TestID != testID {
			return false
		}
	case ScopeTypeDevice:
		if b.DeviceID != deviceID {
			return false
		}
	case ScopeTypeGlobal:
	default:
		return false
	}
	if b.ActiveFrom != nil && b.ActiveFrom.After(at) {
		return false
	}
	if b.ActiveTo != nil && b.ActiveTo.Before(at) {
		return false
	}
	return true
}
