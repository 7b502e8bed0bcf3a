package testutil

import (
	"context"
	"sync"

	"askboard/pkg/types"
)

// RecordingAudit implements interfaces.AuditLog in memory.
type RecordingAudit struct {
	mu     sync.Mutex
	events []types.AuditEvent

	// HealthErr is returned by HealthCheck when set.
	HealthErr error
}

func (a *RecordingAudit) Record(ctx context.Context, event *types.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *event)
}

func (a *RecordingAudit) HealthCheck(ctx context.Context) error { return a.HealthErr }
func (a *RecordingAudit) Close() error                          { return nil }

// Kinds returns the recorded event kinds in order.
func (a *RecordingAudit) Kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	kinds := make([]string, len(a.events))
	for i, e := range a.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Events returns a copy of the recorded events.
func (a *RecordingAudit) Events() []types.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	events := make([]types.AuditEvent, len(a.events))
	copy(events, a.events)
	return events
}
