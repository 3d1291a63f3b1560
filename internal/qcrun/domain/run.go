package domain

import (
	"errors"
	"time"
)

// Side classifies a QC point relative to the target mean.
type Side string

const (
	SideAbove Side = "above"
	SideBelow Side = "below"
	SideOn    Side = "on"
)

// RunStatus is the review lifecycle state of a QC run.
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusAccepted RunStatus = "accepted"
	StatusApproved RunStatus = "approved"
	StatusRejected RunStatus = "rejected"
)

// Terminal reports whether a run has reached a final review state and must not
// be transitioned again.
func (s RunStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AutoResult is the automatic verdict of rule evaluation.
type AutoResult string

const (
	ResultPass AutoResult = "pass"
	ResultWarn AutoResult = "warn"
	ResultFail AutoResult = "fail"
)

// StatisticalLimits holds the target mean/SD/CV a QC group is judged against.
// SD <= 0 makes the z-score undefined.
type StatisticalLimits struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
	CV   float64 `json:"cv"`
}

// QcDataPoint is one historical QC measurement reduced to what rule evaluation
// needs. Immutable once produced.
type QcDataPoint struct {
	ID        string
	Value     float64
	Z         *float64
	Side      Side
	Timestamp time.Time
	LevelID   string
}

// RunGroup identifies the series a QC run belongs to: one control level of one
// lot on one instrument/test.
type RunGroup struct {
	DeviceCode string
	TestCode   string
	Level      string
	LotCode    string
}

// Validate checks that all group identifiers are present.
func (g RunGroup) Validate() error {
	if g.DeviceCode == "" {
		return errors.New("device code is required")
	}
	if g.TestCode == "" {
		return errors.New("test code is required")
	}
	if g.Level == "" {
		return errors.New("level is required")
	}
	if g.LotCode == "" {
		return errors.New("lot code is required")
	}
	return nil
}

// QcRun is a persisted QC measurement together with its evaluation outcome and
// review state.
type QcRun struct {
	ID         string
	Group      RunGroup
	Value      float64
	Z          *float64
	Side       Side
	Status     RunStatus
	AutoResult AutoResult
	Violations []byte // evaluation violations, JSON-encoded
	Note       string
	ReviewedBy string
	MeasuredAt time.Time
	CreatedAt  time.Time
}

// Validate validates the run for persistence.
func (r *QcRun) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if err := r.Group.Validate(); err != nil {
		return err
	}
	if r.MeasuredAt.IsZero() {
		return errors.New("measured_at is required")
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	return nil
}
