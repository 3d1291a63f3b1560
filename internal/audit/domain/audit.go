package domain

import "time"

// AuditEvent records a human or system action over a reviewable resource
// (run approval, limits adoption, profile change).
type AuditEvent struct {
	ID        string
	Actor     string
	Action    string
	Resource  string
	Metadata  []byte // JSON, optional
	CreatedAt time.Time
}

// Actions recorded by the platform.
const (
	ActionRunApproved   = "run.approved"
	ActionRunRejected   = "run.rejected"
	ActionLimitsAdopted = "limits.adopted"
	ActionProfileSaved  = "profile.saved"
	ActionBindingSaved  = "binding.saved"
)
