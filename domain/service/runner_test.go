package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

func newRunnerFixture(t *testing.T) (*SyncRunner, *SyncJobScheduler, *fakeProvider) {
	t.Helper()
	cfg := testDetectionConfig()
	schedCfg := testSchedulerConfig()
	clock := newFakeClock()
	logger := zaptest.NewLogger(t)
	provider := newFakeProvider()

	f := newExecutorFixture(t)
	scheduler := NewSyncJobScheduler(schedCfg, f.store, clock, nil, logger)
	runner := NewSyncRunner(schedCfg, cfg, scheduler, f.executor, provider, logger)
	// Real waits would stall the test; each idle sleep instead moves the fake
	// clock past any retry backoff window and yields briefly.
	runner.sleep = func(ctx context.Context, d time.Duration) {
		clock.Advance(10 * time.Minute)
		time.Sleep(time.Millisecond)
	}
	return runner, scheduler, provider
}

func waitForJobStatus(t *testing.T, scheduler *SyncJobScheduler, jobID string, want entity.JobStatus) *entity.SyncJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job := scheduler.GetJob(jobID); job != nil && job.Status == want {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	job := scheduler.GetJob(jobID)
	t.Fatalf("job %s never reached %s, last state: %+v", jobID, want, job)
	return nil
}

func TestRunnerCompletesMatchingJob(t *testing.T) {
	runner, scheduler, provider := newRunnerFixture(t)
	records := []entity.Record{{"id": "wo-1", "workOrderNumber": "WO-1", "status": "released"}}
	provider.set(entity.SystemMES, entity.EntityTypeWorkOrder, records)
	provider.set(entity.SystemERP, entity.EntityTypeWorkOrder, records)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	defer runner.Stop()

	job, err := scheduler.CreateSyncJob(ctx, "int-1", entity.EntityTypeWorkOrder, entity.OperationTypeFullSync, CreateJobOptions{})
	require.NoError(t, err)

	done := waitForJobStatus(t, scheduler, job.ID, entity.JobStatusCompleted)
	assert.Equal(t, "completed", done.Result["status"])
	assert.Equal(t, 1, done.Result["records_processed"])
	assert.Equal(t, 0, done.Result["unmatched_records"])
}

func TestRunnerFailsJobAfterRetries(t *testing.T) {
	runner, scheduler, provider := newRunnerFixture(t)
	provider.fail(entity.SystemMES, errors.New("mes gateway down"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	defer runner.Stop()

	maxRetries := 1
	job, err := scheduler.CreateSyncJob(ctx, "int-1", entity.EntityTypeWorkOrder, entity.OperationTypeFullSync, CreateJobOptions{MaxRetries: &maxRetries})
	require.NoError(t, err)

	failed := waitForJobStatus(t, scheduler, job.ID, entity.JobStatusFailed)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Contains(t, failed.LastError, "mes gateway down")
}

func TestRunnerReportsUnmatchedRecords(t *testing.T) {
	runner, scheduler, provider := newRunnerFixture(t)
	provider.set(entity.SystemMES, entity.EntityTypeWorkOrder, []entity.Record{
		{"id": "wo-1", "workOrderNumber": "WO-1"},
	})
	provider.set(entity.SystemERP, entity.EntityTypeWorkOrder, []entity.Record{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	defer runner.Stop()

	job, err := scheduler.CreateSyncJob(ctx, "int-1", entity.EntityTypeWorkOrder, entity.OperationTypeFullSync, CreateJobOptions{})
	require.NoError(t, err)

	done := waitForJobStatus(t, scheduler, job.ID, entity.JobStatusCompleted)
	assert.Equal(t, 0, done.Result["records_processed"])
	assert.Equal(t, 1, done.Result["unmatched_records"])
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	runner, _, _ := newRunnerFixture(t)

	runner.Start(context.Background())
	runner.Stop()
	runner.Stop()
}

func TestPairRecords(t *testing.T) {
	source := []entity.Record{
		{"id": "a", "workOrderNumber": "WO-A"},
		{"id": "mes-b", "workOrderNumber": "WO-B"},
		{"id": "c", "workOrderNumber": "WO-C"},
	}
	target := []entity.Record{
		{"id": "a", "workOrderNumber": "WO-A"},
		{"id": "erp-b", "workOrderNumber": "WO-B"},
	}

	pairs, unmatched := pairRecords(source, target, "workOrderNumber")
	require.Len(t, pairs, 2)
	assert.Equal(t, 1, unmatched)
	assert.Equal(t, "a", pairs[0].EntityID)
	// Matched through the alternate key, so the MES surrogate id is kept.
	assert.Equal(t, "mes-b", pairs[1].EntityID)

	pairs, unmatched = pairRecords(source, nil, "workOrderNumber")
	assert.Empty(t, pairs)
	assert.Equal(t, 3, unmatched)
}

func TestJobMetadataControls(t *testing.T) {
	assert.Equal(t, entity.DirectionMESToERP, jobDirection(&entity.SyncJob{}))
	assert.Equal(t, entity.DirectionERPToMES, jobDirection(&entity.SyncJob{
		Metadata: map[string]interface{}{"direction": "erp_to_mes"},
	}))
	assert.Equal(t, entity.DirectionMESToERP, jobDirection(&entity.SyncJob{
		Metadata: map[string]interface{}{"direction": "sideways"},
	}))

	assert.False(t, jobForced(&entity.SyncJob{}))
	assert.True(t, jobForced(&entity.SyncJob{Metadata: map[string]interface{}{"force": true}}))
}
