package repository

import (
	"context"
	"time"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// The core only needs create/read/update-by-id semantics from persistence.
// Implementations live under infrastructure/storage; the in-memory variant is
// the reference used by tests.

// DiscrepancyStore persists detected discrepancies.
type DiscrepancyStore interface {
	SaveDiscrepancies(ctx context.Context, discrepancies []entity.Discrepancy) error
	GetDiscrepancy(ctx context.Context, id string) (*entity.Discrepancy, error)
	UpdateDiscrepancy(ctx context.Context, d *entity.Discrepancy) error
}

// ReportStore persists reconciliation reports and serves history queries.
type ReportStore interface {
	SaveReport(ctx context.Context, report *entity.ReconciliationReport) error
	GetReport(ctx context.Context, id string) (*entity.ReconciliationReport, error)
	ListReports(ctx context.Context, entityType entity.EntityType, since time.Time) ([]entity.ReconciliationReport, error)
}

// JobStore persists sync jobs.
type JobStore interface {
	SaveJob(ctx context.Context, job *entity.SyncJob) error
	GetJob(ctx context.Context, id string) (*entity.SyncJob, error)
	ListJobs(ctx context.Context) ([]entity.SyncJob, error)
}

// OperationStore persists sync operation results.
type OperationStore interface {
	SaveOperation(ctx context.Context, op *entity.SyncOperation) error
	GetOperation(ctx context.Context, id string) (*entity.SyncOperation, error)
}

// ConflictStore persists conflicts and resolution rules.
type ConflictStore interface {
	SaveConflict(ctx context.Context, c *entity.Conflict) error
	GetConflict(ctx context.Context, id string) (*entity.Conflict, error)
	ListConflicts(ctx context.Context, status entity.ConflictStatus) ([]entity.Conflict, error)
}
