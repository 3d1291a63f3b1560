// Package approval implements the human review step over QC runs: only a
// reviewer transitions a pending run to approved or rejected.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"iqc-platform/internal/audit"
	auditdomain "iqc-platform/internal/audit/domain"
	"iqc-platform/internal/qcrun/domain"
)

var (
	// ErrRunNotFound is returned when the run does not exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrAlreadyTerminal is returned when the run was already approved or
	// rejected; terminal runs are never transitioned again.
	ErrAlreadyTerminal = errors.New("run already in a terminal state")
	// ErrNoteRequired is returned when a rejection carries no note.
	ErrNoteRequired = errors.New("rejection requires a note")
)

// Skip reasons reported by Bulk for items that were not transitioned.
const (
	SkipNotFound        = "not_found"
	SkipAlreadyTerminal = "already_terminal"
)

// RunStore is the run persistence the service needs.
type RunStore interface {
	GetByID(ctx context.Context, id string) (*domain.QcRun, error)
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, note, reviewedBy string) error
}

type Service struct {
	runs  RunStore
	audit audit.Recorder // optional
}

// NewService returns an approval service. recorder may be nil.
func NewService(runs RunStore, recorder audit.Recorder) *Service {
	return &Service{runs: runs, audit: recorder}
}

// Approve transitions a pending run to approved.
func (s *Service) Approve(ctx context.Context, runID, actor, note string) error {
	return s.transition(ctx, runID, domain.StatusApproved, actor, note)
}

// Reject transitions a pending run to rejected. A note is mandatory: a
// clinical rejection without a recorded reason is not reviewable.
func (s *Service) Reject(ctx context.Context, runID, actor, note string) error {
	if note == "" {
		return ErrNoteRequired
	}
	return s.transition(ctx, runID, domain.StatusRejected, actor, note)
}

func (s *Service) transition(ctx context.Context, runID string, status domain.RunStatus, actor, note string) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		return ErrRunNotFound
	}
	if run.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if err := s.runs.UpdateStatus(ctx, runID, status, note, actor); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	action := auditdomain.ActionRunApproved
	if status == domain.StatusRejected {
		action = auditdomain.ActionRunRejected
	}
	audit.RecordAsync(s.audit, &auditdomain.AuditEvent{
		ID:       uuid.NewString(),
		Actor:    actor,
		Action:   action,
		Resource: "run:" + runID,
		Metadata: noteMetadata(note),
	})
	return nil
}

// BulkItem is the outcome of one run in a bulk review.
type BulkItem struct {
	RunID   string `json:"runId"`
	Done    bool   `json:"done"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Bulk applies the same review decision to many runs. Each run is an
// independent unit of work: one failure never aborts its siblings, and
// already-terminal runs are skipped with a distinguishable reason.
func (s *Service) Bulk(ctx context.Context, runIDs []string, approve bool, actor, note string) ([]BulkItem, error) {
	if !approve && note == "" {
		return nil, ErrNoteRequired
	}
	out := make([]BulkItem, 0, len(runIDs))
	for _, id := range runIDs {
		var err error
		if approve {
			err = s.Approve(ctx, id, actor, note)
		} else {
			err = s.Reject(ctx, id, actor, note)
		}
		switch {
		case err == nil:
			out = append(out, BulkItem{RunID: id, Done: true})
		case errors.Is(err, ErrRunNotFound):
			out = append(out, BulkItem{RunID: id, Skipped: true, Reason: SkipNotFound})
		case errors.Is(err, ErrAlreadyTerminal):
			out = append(out, BulkItem{RunID: id, Skipped: true, Reason: SkipAlreadyTerminal})
		default:
			out = append(out, BulkItem{RunID: id, Skipped: true, Reason: err.Error()})
		}
	}
	return out, nil
}

func noteMetadata(note string) []byte {
	if note == "" {
		return nil
	}
	b, err := json.Marshal(map[string]string{"note": note})
	if err != nil {
		return nil
	}
	return b
}
