// Package domain holds the statistical-limits model: versioned limits records
// and rolling-window proposals.
package domain

import (
	"errors"
	"time"

	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// LimitsVersion is one persisted mean/SD record for a run group. Exactly one
// version per group is current at a time.
type LimitsVersion struct {
	ID         string    `json:"id"`
	DeviceCode string    `json:"deviceCode"`
	TestCode   string    `json:"testCode"`
	Level      string    `json:"level"`
	LotCode    string    `json:"lotCode"`
	Mean       float64   `json:"mean"`
	SD         float64   `json:"sd"`
	CV         float64   `json:"cv"`
	Version    int       `json:"version"`
	IsCurrent  bool      `json:"isCurrent"`
	Source     string    `json:"source"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Limits returns the statistical limits carried by this version.
func (v *LimitsVersion) Limits() qcrundomain.StatisticalLimits {
	return qcrundomain.StatisticalLimits{Mean: v.Mean, SD: v.SD, CV: v.CV}
}

// Validate validates the version for persistence.
func (v *LimitsVersion) Validate() error {
	if v.ID == "" {
		return errors.New("id is required")
	}
	g := qcrundomain.RunGroup{
		DeviceCode: v.DeviceCode,
		TestCode:   v.TestCode,
		Level:      v.Level,
		LotCode:    v.LotCode,
	}
	if err := g.Validate(); err != nil {
		return err
	}
	if v.SD < 0 {
		return errors.New("sd must not be negative")
	}
	return nil
}

// SamplePoint is a single in-control measurement feeding a rolling window.
type SamplePoint struct {
	Value      float64
	MeasuredAt time.Time
}

// ProposalWindow describes the span of points a proposal was computed over.
type ProposalWindow struct {
	N        int       `json:"n"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	SpanDays int       `json:"spanDays"`
}

// ProposalStats is the candidate mean/SD/CV of a proposal.
type ProposalStats struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
	CV   float64 `json:"cv"`
}

// RollingProposal is the outcome of a rolling-window limits computation.
// Ineligible outcomes are normal results, not errors: Reasons explains why,
// and Window may still be set for display when the span guard failed.
type RollingProposal struct {
	Eligible      bool                           `json:"eligible"`
	Reasons       []string                       `json:"reasons,omitempty"`
	Window        *ProposalWindow                `json:"window,omitempty"`
	Stats         *ProposalStats                 `json:"stats,omitempty"`
	ExcludedCount int                            `json:"excludedCount"`
	CurrentLimits *qcrundomain.StatisticalLimits `json:"currentLimits,omitempty"`
}
