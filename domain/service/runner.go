package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// SyncRunner drives the scheduler: it dequeues jobs one at a time, executes
// them through the sync executor against fresh provider snapshots, and feeds
// outcomes back into the job state machine. The provider timeout is applied
// here, at the edge; retry backoff is a per-job eligibility window tracked by
// the scheduler, so a backing-off job never stalls the rest of the queue.
type SyncRunner struct {
	cfg       config.SchedulerConfig
	scheduler *SyncJobScheduler
	executor  *SyncExecutor
	detection config.DetectionConfig
	provider  repository.RecordProvider
	logger    *zap.Logger

	// sleep is injectable for tests; the default honors context cancellation.
	sleep func(ctx context.Context, d time.Duration)

	closeCh chan struct{}
	closed  bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewSyncRunner creates a runner over the given scheduler and executor.
func NewSyncRunner(
	cfg config.SchedulerConfig,
	detection config.DetectionConfig,
	scheduler *SyncJobScheduler,
	executor *SyncExecutor,
	provider repository.RecordProvider,
	logger *zap.Logger,
) *SyncRunner {
	return &SyncRunner{
		cfg:       cfg,
		detection: detection,
		scheduler: scheduler,
		executor:  executor,
		provider:  provider,
		logger:    logger,
		sleep:     sleepWithContext,
		closeCh:   make(chan struct{}),
	}
}

// Start launches the run loop. It returns immediately; Stop shuts the loop
// down cooperatively.
func (r *SyncRunner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
	r.logger.Info("Sync runner started", zap.Duration("poll_interval", r.cfg.PollInterval))
}

// Stop signals the run loop to exit and waits for the in-flight job, if any,
// to run to completion or failure. Jobs are never abandoned mid-execution.
func (r *SyncRunner) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.closeCh)
	}
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Info("Sync runner stopped")
}

func (r *SyncRunner) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closeCh:
			return
		default:
		}

		job, err := r.scheduler.GetNextJob(ctx)
		if err != nil {
			r.logger.Error("Failed to dequeue job", zap.Error(err))
			r.sleep(ctx, r.cfg.PollInterval)
			continue
		}
		if job == nil {
			r.sleep(ctx, r.cfg.PollInterval)
			continue
		}

		result, execErr := r.executeJob(ctx, job)
		if _, err := r.scheduler.CompleteSyncJob(ctx, job.ID, result, execErr); err != nil {
			var exhausted *RetryExhaustedError
			if errors.As(err, &exhausted) {
				r.logger.Error("Sync job exhausted retries",
					zap.String("job_id", job.ID),
					zap.String("last_error", exhausted.LastError),
				)
			} else {
				r.logger.Error("Failed to finalize job", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
}

// executeJob runs one sync job against fresh provider snapshots. The provider
// timeout bounds the whole execution so a hung fetch cannot hold the
// scheduler's single in-flight slot indefinitely.
func (r *SyncRunner) executeJob(ctx context.Context, job *entity.SyncJob) (map[string]interface{}, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	direction := jobDirection(job)
	sourceSide, targetSide := entity.SystemMES, entity.SystemERP
	if direction == entity.DirectionERPToMES {
		sourceSide, targetSide = entity.SystemERP, entity.SystemMES
	}

	sourceRecords, err := r.provider.FetchRecords(execCtx, job.EntityType, sourceSide, repository.RecordFilter{})
	if err != nil {
		return nil, &ProviderError{Side: sourceSide, Err: err}
	}
	targetRecords, err := r.provider.FetchRecords(execCtx, job.EntityType, targetSide, repository.RecordFilter{})
	if err != nil {
		return nil, &ProviderError{Side: targetSide, Err: err}
	}

	pairs, unmatched := pairRecords(sourceRecords, targetRecords, r.detection.AlternateKeyFor(job.EntityType))
	if len(pairs) == 0 {
		return map[string]interface{}{
			"records_processed": 0,
			"unmatched_records": unmatched,
		}, nil
	}

	op, err := r.executor.BatchSync(execCtx, job.IntegrationID, job.EntityType, pairs, direction, SyncOptions{ForceSync: jobForced(job)})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"operation_id":       op.ID,
		"status":             string(op.Status),
		"records_processed":  op.RecordsProcessed,
		"records_succeeded":  op.RecordsSucceeded,
		"records_conflicted": op.RecordsConflicted,
		"unmatched_records":  unmatched,
	}, nil
}

// pairRecords matches source records to target records by primary id, then by
// the alternate business key. One-sided records are reconciliation's concern,
// not the sync path's; only their count is reported.
func pairRecords(sourceRecords, targetRecords []entity.Record, altKey string) ([]RecordPair, int) {
	targetByID := make(map[string]entity.Record, len(targetRecords))
	targetByAlt := make(map[string]entity.Record)
	for _, rec := range targetRecords {
		if id := rec.ID(); id != "" {
			targetByID[id] = rec
		}
		if altKey != "" {
			if key := rec.StringField(altKey); key != "" {
				targetByAlt[key] = rec
			}
		}
	}

	var pairs []RecordPair
	unmatched := 0
	for _, src := range sourceRecords {
		target, ok := targetByID[src.ID()]
		if !ok && altKey != "" {
			target, ok = targetByAlt[src.StringField(altKey)]
		}
		if !ok {
			unmatched++
			continue
		}
		entityID := src.ID()
		if entityID == "" && altKey != "" {
			entityID = src.StringField(altKey)
		}
		pairs = append(pairs, RecordPair{EntityID: entityID, SourceData: src, TargetData: target})
	}
	return pairs, unmatched
}

func jobDirection(job *entity.SyncJob) entity.SyncDirection {
	if v, ok := job.Metadata["direction"].(string); ok && entity.SyncDirection(v) == entity.DirectionERPToMES {
		return entity.DirectionERPToMES
	}
	return entity.DirectionMESToERP
}

func jobForced(job *entity.SyncJob) bool {
	forced, _ := job.Metadata["force"].(bool)
	return forced
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
