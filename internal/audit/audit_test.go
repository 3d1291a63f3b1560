package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"iqc-platform/internal/audit/domain"
)

type mockRecorder struct {
	mu        sync.Mutex
	events    []*domain.AuditEvent
	recordErr error
}

func (m *mockRecorder) Record(ctx context.Context, event *domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.recordErr
}

func (m *mockRecorder) getEvents() []*domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func TestRecordAsync_NilRecorder(t *testing.T) {
	// Should not panic
	RecordAsync(nil, &domain.AuditEvent{ID: "a1", Action: domain.ActionRunApproved})
}

func TestRecordAsync_NilEvent(t *testing.T) {
	rec := &mockRecorder{}
	RecordAsync(rec, nil)

	time.Sleep(10 * time.Millisecond)
	if got := rec.getEvents(); len(got) != 0 {
		t.Errorf("expected 0 events, got %d", len(got))
	}
}

func TestRecordAsync_RecordsEvent(t *testing.T) {
	rec := &mockRecorder{}
	event := &domain.AuditEvent{
		ID:       "a1",
		Actor:    "reviewer-1",
		Action:   domain.ActionRunRejected,
		Resource: "run:r1",
	}
	RecordAsync(rec, event)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rec.getEvents()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := rec.getEvents()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Action != domain.ActionRunRejected {
		t.Errorf("action = %q, want %q", got[0].Action, domain.ActionRunRejected)
	}
}

func TestRecordAsync_ErrorIsSwallowed(t *testing.T) {
	rec := &mockRecorder{recordErr: errors.New("db down")}
	// Should not panic; the error is logged and dropped.
	RecordAsync(rec, &domain.AuditEvent{ID: "a1", Action: domain.ActionLimitsAdopted, Resource: "limits:g1"})
	time.Sleep(20 * time.Millisecond)
}
