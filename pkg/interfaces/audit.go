package interfaces

import (
	"context"

	"askboard/pkg/types"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_audit.go askboard/pkg/interfaces AuditLog,ContentFilter

// AuditLog records moderation events. Record must return quickly; slow
// storage is handled behind the implementation.
type AuditLog interface {
	Record(ctx context.Context, event *types.AuditEvent)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// ContentFilter classifies question text.
type ContentFilter interface {
	IsBlocked(text string) bool
}

// NopAuditLog discards every event. Used when auditing is disabled.
type NopAuditLog struct{}

func (NopAuditLog) Record(ctx context.Context, event *types.AuditEvent) {}
func (NopAuditLog) HealthCheck(ctx context.Context) error               { return nil }
func (NopAuditLog) Close() error                                        { return nil }
