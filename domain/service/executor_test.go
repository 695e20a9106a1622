package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
	"github.com/steiner385/MachShop-sub017/infrastructure/storage/memory"
)

type executorFixture struct {
	executor *SyncExecutor
	engine   *ConflictResolutionEngine
	store    *memory.Store
	clock    *fakeClock
	notifier *captureNotifier
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	cfg := testDetectionConfig()
	clock := newFakeClock()
	store := memory.NewStore()
	notifier := &captureNotifier{}
	logger := zaptest.NewLogger(t)
	detector := NewDiscrepancyDetector(cfg, clock, logger)
	engine := NewConflictResolutionEngine(cfg, store, clock, notifier, logger)
	return &executorFixture{
		executor: NewSyncExecutor(detector, engine, store, clock, notifier, logger),
		engine:   engine,
		store:    store,
		clock:    clock,
		notifier: notifier,
	}
}

func TestSyncDataNoDifferences(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	rec := entity.Record{"id": "wo-1", "quantityOrdered": 50.0, "status": "released"}
	op, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", rec, rec, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, entity.OperationStatusCompleted, op.Status)
	assert.Equal(t, 1, op.RecordsProcessed)
	assert.Equal(t, 1, op.RecordsSucceeded)
	assert.Zero(t, op.RecordsConflicted)
	assert.Empty(t, op.ChangedFields)
	assert.Equal(t, entity.SystemMES, op.SourceSystem)
	assert.Equal(t, entity.SystemERP, op.TargetSystem)

	stored, err := f.store.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, f.notifier.eventsOfType(repository.EventOperationRecorded), 1)
}

func TestSyncDataDetectsConflicts(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	source := entity.Record{"id": "wo-1", "quantityOrdered": 100.0, "status": "released", "updatedAt": "2025-06-01T10:00:00Z"}
	target := entity.Record{"id": "wo-1", "quantityOrdered": 105.0, "status": "released", "updatedAt": "2025-06-01T11:00:00Z"}

	op, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, entity.OperationStatusConflict, op.Status)
	assert.Equal(t, 1, op.RecordsConflicted)
	// The stale updatedAt is itself a differing field.
	assert.Equal(t, []string{"quantityOrdered", "updatedAt"}, op.ChangedFields)
	require.Len(t, op.ConflictDetails, 2)
	assert.Equal(t, "quantityOrdered", op.ConflictDetails[0].Field)
	assert.Equal(t, 100.0, op.ConflictDetails[0].SourceValue)
	assert.Equal(t, 105.0, op.ConflictDetails[0].TargetValue)

	assert.True(t, f.engine.HasUnresolvedConflict(entity.EntityTypeWorkOrder, "wo-1", "quantityOrdered"))

	// The conflicts inherit the records' own write timestamps.
	conflicts, err := f.store.ListConflicts(ctx, entity.ConflictStatusUnresolved)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	for _, conflict := range conflicts {
		assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), conflict.SourceTimestamp)
		assert.Equal(t, time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), conflict.TargetTimestamp)
		assert.Equal(t, op.ID, conflict.OperationID)
	}
}

func TestSyncDataDoesNotDuplicateOpenConflicts(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	source := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}
	target := entity.Record{"id": "wo-1", "quantityOrdered": 105.0}

	first, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, entity.OperationStatusConflict, first.Status)

	// Re-running the same comparison reports the conflict again but leaves
	// the single open conflict record in place.
	second, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, entity.OperationStatusConflict, second.Status)
	assert.Equal(t, []string{"quantityOrdered"}, second.ChangedFields)

	conflicts, err := f.store.ListConflicts(ctx, entity.ConflictStatusUnresolved)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestSyncDataForceApplies(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	source := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}
	target := entity.Record{"id": "wo-1", "quantityOrdered": 105.0}

	op, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{ForceSync: true})
	require.NoError(t, err)

	assert.Equal(t, entity.OperationStatusCompleted, op.Status)
	assert.True(t, op.Forced)
	assert.Equal(t, 1, op.RecordsSucceeded)
	// Changed fields are reported even when force applies them.
	assert.Equal(t, []string{"quantityOrdered"}, op.ChangedFields)
	assert.False(t, f.engine.HasUnresolvedConflict(entity.EntityTypeWorkOrder, "wo-1", "quantityOrdered"))
}

func TestSyncDataForceBlockedByUnresolvedConflict(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	source := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}
	target := entity.Record{"id": "wo-1", "quantityOrdered": 105.0}

	// First pass without force raises the conflict.
	_, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)

	_, err = f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{ForceSync: true})
	var blocked *ConflictBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "quantityOrdered", blocked.Field)
}

func TestSyncDataDirectionSetsSystems(t *testing.T) {
	f := newExecutorFixture(t)

	rec := entity.Record{"id": "inv-1"}
	op, err := f.executor.SyncData(context.Background(), "int-1", entity.EntityTypeInventory, "inv-1", rec, rec, entity.DirectionERPToMES, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, entity.SystemERP, op.SourceSystem)
	assert.Equal(t, entity.SystemMES, op.TargetSystem)
}

func TestBatchSyncAggregates(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	pairs := []RecordPair{
		{
			EntityID:   "wo-1",
			SourceData: entity.Record{"id": "wo-1", "status": "released"},
			TargetData: entity.Record{"id": "wo-1", "status": "released"},
		},
		{
			EntityID:   "wo-2",
			SourceData: entity.Record{"id": "wo-2", "quantityOrdered": 10.0},
			TargetData: entity.Record{"id": "wo-2", "quantityOrdered": 12.0},
		},
		{
			EntityID:   "wo-3",
			SourceData: entity.Record{"id": "wo-3", "priority": 1},
			TargetData: entity.Record{"id": "wo-3", "priority": 1},
		},
	}

	batch, err := f.executor.BatchSync(ctx, "int-1", entity.EntityTypeWorkOrder, pairs, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, entity.OperationStatusConflict, batch.Status)
	assert.Equal(t, 3, batch.RecordsProcessed)
	assert.Equal(t, 2, batch.RecordsSucceeded)
	assert.Equal(t, 1, batch.RecordsConflicted)
	assert.Zero(t, batch.RecordsFailed)
	assert.Equal(t, []string{"quantityOrdered"}, batch.ChangedFields)
}

func TestBatchSyncAllCleanCompletes(t *testing.T) {
	f := newExecutorFixture(t)

	rec := entity.Record{"id": "wo-1", "status": "released"}
	batch, err := f.executor.BatchSync(context.Background(), "int-1", entity.EntityTypeWorkOrder,
		[]RecordPair{{EntityID: "wo-1", SourceData: rec, TargetData: rec}},
		entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, entity.OperationStatusCompleted, batch.Status)
}

func TestBatchSyncRejectsEmptyBatch(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.executor.BatchSync(context.Background(), "int-1", entity.EntityTypeWorkOrder, nil, entity.DirectionMESToERP, SyncOptions{})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestRetrySyncOperation(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	source := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}
	target := entity.Record{"id": "wo-1", "quantityOrdered": 105.0}
	conflicted, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", source, target, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)
	require.Equal(t, entity.OperationStatusConflict, conflicted.Status)

	// Retrying with force is still blocked while the conflict is open.
	_, err = f.executor.RetrySyncOperation(ctx, conflicted.ID, SyncOptions{ForceSync: true})
	var blocked *ConflictBlockedError
	require.ErrorAs(t, err, &blocked)

	// After the conflict is resolved, the forced retry completes.
	conflicts, err := f.store.ListConflicts(ctx, entity.ConflictStatusUnresolved)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	_, err = f.engine.ResolveConflict(ctx, conflicts[0].ID, entity.StrategySourcePriority, ResolveOptions{})
	require.NoError(t, err)

	retried, err := f.executor.RetrySyncOperation(ctx, conflicted.ID, SyncOptions{ForceSync: true})
	require.NoError(t, err)
	assert.Equal(t, entity.OperationStatusCompleted, retried.Status)
	assert.Equal(t, "wo-1", retried.EntityID)
	assert.NotEqual(t, conflicted.ID, retried.ID)
}

func TestRetrySyncOperationValidation(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	_, err := f.executor.RetrySyncOperation(ctx, "op_unknown", SyncOptions{})
	assert.True(t, IsNotFound(err))

	rec := entity.Record{"id": "wo-1"}
	completed, err := f.executor.SyncData(ctx, "int-1", entity.EntityTypeWorkOrder, "wo-1", rec, rec, entity.DirectionMESToERP, SyncOptions{})
	require.NoError(t, err)

	_, err = f.executor.RetrySyncOperation(ctx, completed.ID, SyncOptions{})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
}
