// Package audit records review actions. Recording is best-effort; a failed
// audit write never blocks or fails the action it describes.
package audit

import (
	"context"
	"log"
	"time"

	"iqc-platform/internal/audit/domain"
)

// Recorder persists audit events. Best-effort; callers log and ignore errors.
type Recorder interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
}

// RecordAsync records the event in a background goroutine with its own
// timeout, detached from the caller's context so a finished request does not
// cancel the write. Nil recorder and nil event are no-ops.
func RecordAsync(r Recorder, event *domain.AuditEvent) {
	if r == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Record(ctx, event); err != nil {
			log.Printf("audit: record %s on %s failed: %v", event.Action, event.Resource, err)
		}
	}()
}
