package repository

import (
	"context"
	"time"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// IntegrationEvent is emitted on job status transitions and conflict
// resolution/approval events. Sinks are fire-and-forget; a failing sink must
// never fail the sync that produced the event.
type IntegrationEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	EntityType entity.EntityType      `json:"entity_type,omitempty"`
	SubjectID  string                 `json:"subject_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Event types published by the core.
const (
	EventJobStatusChanged  = "sync_job.status_changed"
	EventConflictResolved  = "conflict.resolved"
	EventConflictApproved  = "conflict.approved"
	EventConflictRejected  = "conflict.rejected"
	EventReportFinalized   = "reconciliation.report_finalized"
	EventOperationRecorded = "sync.operation_recorded"
)

// Notifier is the audit/notification sink boundary.
type Notifier interface {
	Notify(ctx context.Context, event IntegrationEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event IntegrationEvent) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event IntegrationEvent) error {
	return f(ctx, event)
}

// Clock is an injectable time source so timestamp-based resolution and retry
// delays are testable without real timers.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
