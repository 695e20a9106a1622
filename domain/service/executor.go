package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// SyncOptions controls a single executor run.
type SyncOptions struct {
	// ForceSync applies the source values even when differences are found.
	ForceSync bool
}

// RecordPair is one item of a batch sync.
type RecordPair struct {
	EntityID   string
	SourceData entity.Record
	TargetData entity.Record
}

// SyncExecutor compares a single source/target record pair using the same
// tolerant field diff as reconciliation, detects conflicts, optionally
// force-applies, and supports batched multi-record sync.
type SyncExecutor struct {
	detector  *DiscrepancyDetector
	conflicts *ConflictResolutionEngine
	store     repository.OperationStore
	clock     repository.Clock
	notifier  repository.Notifier
	logger    *zap.Logger
}

// NewSyncExecutor creates an executor. The notifier may be nil.
func NewSyncExecutor(
	detector *DiscrepancyDetector,
	conflicts *ConflictResolutionEngine,
	store repository.OperationStore,
	clock repository.Clock,
	notifier repository.Notifier,
	logger *zap.Logger,
) *SyncExecutor {
	return &SyncExecutor{
		detector:  detector,
		conflicts: conflicts,
		store:     store,
		clock:     clock,
		notifier:  notifier,
		logger:    logger,
	}
}

// SyncData compares one source/target pair. No differences completes the
// operation; differences without force produce a conflict operation with the
// differing fields recorded on both sides; differences with force complete
// with the source winning. Changed fields are always listed regardless of
// force mode.
func (x *SyncExecutor) SyncData(
	ctx context.Context,
	integrationID string,
	entityType entity.EntityType,
	entityID string,
	sourceData, targetData entity.Record,
	direction entity.SyncDirection,
	opts SyncOptions,
) (*entity.SyncOperation, error) {
	if entityType == "" {
		return nil, NewValidationError("entity type is required")
	}

	op := x.newOperation(integrationID, entityType, entityID, direction)
	op.Forced = opts.ForceSync

	diffs := x.detector.Detect(entityType, entityID, sourceData, targetData)
	op.RecordsProcessed = 1
	for _, diff := range diffs {
		op.ChangedFields = append(op.ChangedFields, diff.Field)
		op.ConflictDetails = append(op.ConflictDetails, entity.FieldConflict{
			Field:       diff.Field,
			SourceValue: diff.MESValue,
			TargetValue: diff.ERPValue,
		})
	}

	switch {
	case len(diffs) == 0:
		op.Status = entity.OperationStatusCompleted
		op.RecordsSucceeded = 1
	case opts.ForceSync:
		for _, diff := range diffs {
			if x.conflicts.HasUnresolvedConflict(entityType, entityID, diff.Field) {
				return nil, &ConflictBlockedError{EntityType: entityType, EntityID: entityID, Field: diff.Field}
			}
		}
		// Source wins; differences are applied, not escalated.
		op.Status = entity.OperationStatusCompleted
		op.RecordsSucceeded = 1
	default:
		op.Status = entity.OperationStatusConflict
		op.RecordsConflicted = 1
		if err := x.recordConflicts(ctx, op, sourceData, targetData, diffs); err != nil {
			return nil, err
		}
	}

	if err := x.finalizeOperation(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// BatchSync runs SyncData per record and aggregates the counts into one
// batch-level operation. A failure or conflict in one record does not abort
// the batch.
func (x *SyncExecutor) BatchSync(
	ctx context.Context,
	integrationID string,
	entityType entity.EntityType,
	records []RecordPair,
	direction entity.SyncDirection,
	opts SyncOptions,
) (*entity.SyncOperation, error) {
	if len(records) == 0 {
		return nil, NewValidationError("batch contains no records")
	}

	batch := x.newOperation(integrationID, entityType, "", direction)
	batch.ID = entity.NewID("batch")
	batch.Forced = opts.ForceSync

	for _, pair := range records {
		op, err := x.SyncData(ctx, integrationID, entityType, pair.EntityID, pair.SourceData, pair.TargetData, direction, opts)
		batch.RecordsProcessed++
		if err != nil {
			batch.RecordsFailed++
			x.logger.Warn("Batch item failed",
				zap.String("entity_type", string(entityType)),
				zap.String("entity_id", pair.EntityID),
				zap.Error(err),
			)
			continue
		}
		batch.RecordsSucceeded += op.RecordsSucceeded
		batch.RecordsConflicted += op.RecordsConflicted
		batch.ChangedFields = append(batch.ChangedFields, op.ChangedFields...)
	}

	switch {
	case batch.RecordsConflicted > 0:
		batch.Status = entity.OperationStatusConflict
	case batch.RecordsFailed == batch.RecordsProcessed:
		batch.Status = entity.OperationStatusFailed
	default:
		batch.Status = entity.OperationStatusCompleted
	}

	if err := x.finalizeOperation(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RetrySyncOperation re-evaluates a previously conflicted operation with the
// same comparison rule, producing a fresh operation for the same entity
// identity. Re-running with force may complete it; without force a real
// conflict remains a conflict.
func (x *SyncExecutor) RetrySyncOperation(ctx context.Context, id string, opts SyncOptions) (*entity.SyncOperation, error) {
	prior, err := x.store.GetOperation(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load operation")
	}
	if prior == nil {
		return nil, &NotFoundError{Kind: "sync operation", ID: id}
	}
	if prior.Status != entity.OperationStatusConflict {
		return nil, NewValidationError("operation %s is %s, only conflicted operations can be retried", id, prior.Status)
	}

	sourceData := make(entity.Record, len(prior.ConflictDetails))
	targetData := make(entity.Record, len(prior.ConflictDetails))
	for _, detail := range prior.ConflictDetails {
		sourceData[detail.Field] = detail.SourceValue
		targetData[detail.Field] = detail.TargetValue
	}

	return x.SyncData(ctx, prior.IntegrationID, prior.EntityType, prior.EntityID, sourceData, targetData, prior.Direction, opts)
}

func (x *SyncExecutor) newOperation(integrationID string, entityType entity.EntityType, entityID string, direction entity.SyncDirection) *entity.SyncOperation {
	source, target := entity.SystemMES, entity.SystemERP
	if direction == entity.DirectionERPToMES {
		source, target = entity.SystemERP, entity.SystemMES
	}
	return &entity.SyncOperation{
		ID:            entity.NewID("op"),
		IntegrationID: integrationID,
		EntityType:    entityType,
		EntityID:      entityID,
		Direction:     direction,
		SourceSystem:  source,
		TargetSystem:  target,
		StartedAt:     x.clock.Now(),
	}
}

func (x *SyncExecutor) recordConflicts(ctx context.Context, op *entity.SyncOperation, sourceData, targetData entity.Record, diffs []entity.Discrepancy) error {
	sourceStamp := recordTimestamp(sourceData, x.clock)
	targetStamp := recordTimestamp(targetData, x.clock)
	for _, diff := range diffs {
		if x.conflicts.HasUnresolvedConflict(op.EntityType, op.EntityID, diff.Field) {
			// Re-evaluating the same pair must not mint a duplicate.
			continue
		}
		_, err := x.conflicts.CreateConflict(ctx, entity.Conflict{
			OperationID:     op.ID,
			EntityType:      op.EntityType,
			EntityID:        op.EntityID,
			FieldName:       diff.Field,
			SourceValue:     diff.MESValue,
			TargetValue:     diff.ERPValue,
			SourceSystem:    op.SourceSystem,
			TargetSystem:    op.TargetSystem,
			SourceTimestamp: sourceStamp,
			TargetTimestamp: targetStamp,
		})
		if err != nil {
			return errors.Wrap(err, "failed to record conflict")
		}
	}
	return nil
}

func (x *SyncExecutor) finalizeOperation(ctx context.Context, op *entity.SyncOperation) error {
	op.CompletedAt = x.clock.Now()
	op.Duration = op.CompletedAt.Sub(op.StartedAt)
	if err := x.store.SaveOperation(ctx, op); err != nil {
		return errors.Wrap(err, "failed to persist sync operation")
	}

	if x.notifier != nil {
		event := repository.IntegrationEvent{
			ID:         entity.NewID("evt"),
			Type:       repository.EventOperationRecorded,
			EntityType: op.EntityType,
			SubjectID:  op.ID,
			Payload: map[string]interface{}{
				"status":             string(op.Status),
				"records_processed":  op.RecordsProcessed,
				"records_conflicted": op.RecordsConflicted,
			},
			OccurredAt: op.CompletedAt,
		}
		if err := x.notifier.Notify(ctx, event); err != nil {
			x.logger.Warn("Notification sink failed", zap.String("operation_id", op.ID), zap.Error(err))
		}
	}
	return nil
}

// recordTimestamp extracts the record's own updatedAt when present so
// last-write-wins resolution reflects the systems' clocks, not ours.
func recordTimestamp(rec entity.Record, clock repository.Clock) time.Time {
	for _, field := range []string{"updatedAt", "updated_at", "lastModified"} {
		if v, ok := rec[field]; ok {
			if t, ok := toTime(v); ok {
				return t
			}
		}
	}
	return clock.Now()
}
