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

// CreateJobOptions carries optional settings for a new sync job.
type CreateJobOptions struct {
	Priority   entity.JobPriority
	MaxRetries *int
	Metadata   map[string]interface{}
}

// SyncJobScheduler owns a priority-ordered queue of sync jobs and the single
// in-flight slot. At most one job is in progress per scheduler instance at any
// time; parallel deployments partition by integration id behind a distributed
// lock, which is outside this core. All shared state is guarded by one mutex.
type SyncJobScheduler struct {
	cfg      config.SchedulerConfig
	store    repository.JobStore
	clock    repository.Clock
	notifier repository.Notifier
	logger   *zap.Logger

	mu         sync.Mutex
	jobs       map[string]*entity.SyncJob
	queue      []*entity.SyncJob
	processing *entity.SyncJob
}

// NewSyncJobScheduler creates a scheduler. The notifier may be nil.
func NewSyncJobScheduler(
	cfg config.SchedulerConfig,
	store repository.JobStore,
	clock repository.Clock,
	notifier repository.Notifier,
	logger *zap.Logger,
) *SyncJobScheduler {
	return &SyncJobScheduler{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
		jobs:     make(map[string]*entity.SyncJob),
	}
}

// CreateSyncJob creates a job and enqueues it in priority order, ties broken
// by arrival order within a priority band.
func (s *SyncJobScheduler) CreateSyncJob(ctx context.Context, integrationID string, entityType entity.EntityType, operationType entity.OperationType, opts CreateJobOptions) (*entity.SyncJob, error) {
	if integrationID == "" {
		return nil, NewValidationError("integration id is required")
	}
	if entityType == "" {
		return nil, NewValidationError("entity type is required")
	}

	priority := opts.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}
	maxRetries := s.cfg.DefaultMaxRetries
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return nil, NewValidationError("max retries must not be negative")
		}
		maxRetries = *opts.MaxRetries
	}

	job := &entity.SyncJob{
		ID:            entity.NewID("job"),
		IntegrationID: integrationID,
		EntityType:    entityType,
		OperationType: operationType,
		Priority:      priority,
		Status:        entity.JobStatusPending,
		MaxRetries:    maxRetries,
		Metadata:      opts.Metadata,
		CreatedAt:     s.clock.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	job.Status = entity.JobStatusQueued
	s.enqueueLocked(job)
	snapshot := *job
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, &snapshot); err != nil {
		// Roll back so a job the caller was told failed never runs.
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.removeFromQueueLocked(job.ID)
		s.mu.Unlock()
		return nil, errors.Wrap(err, "failed to persist sync job")
	}
	s.notifyTransition(ctx, &snapshot)

	s.logger.Info("Sync job queued",
		zap.String("job_id", job.ID),
		zap.String("entity_type", string(entityType)),
		zap.String("priority", string(priority)),
	)
	return &snapshot, nil
}

// GetNextJob dequeues the first eligible job and marks it in progress. Jobs
// still inside their retry backoff window are skipped so a backing-off job
// never stalls the rest of the queue. It returns nil while a job is already
// in flight or nothing is eligible.
func (s *SyncJobScheduler) GetNextJob(ctx context.Context) (*entity.SyncJob, error) {
	s.mu.Lock()
	if s.processing != nil {
		s.mu.Unlock()
		return nil, nil
	}

	now := s.clock.Now()
	idx := -1
	for i, queued := range s.queue {
		if queued.NextAttemptAt == nil || !queued.NextAttemptAt.After(now) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil, nil
	}

	job := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	job.Status = entity.JobStatusInProgress
	job.StartedAt = &now
	job.NextAttemptAt = nil
	s.processing = job
	snapshot := *job
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, &snapshot); err != nil {
		// Release the in-flight slot and requeue at the head, or the slot
		// stays held by a job nobody can ever complete.
		s.mu.Lock()
		job.Status = entity.JobStatusQueued
		job.StartedAt = nil
		if s.processing == job {
			s.processing = nil
		}
		s.queue = append([]*entity.SyncJob{job}, s.queue...)
		s.mu.Unlock()
		return nil, errors.Wrap(err, "failed to persist job start")
	}
	s.notifyTransition(ctx, &snapshot)
	return &snapshot, nil
}

// CompleteSyncJob finalizes the in-flight job. On success it becomes
// completed; on failure it is requeued with an incremented retry count and a
// backoff window while retries remain, otherwise it fails terminally with the
// last error preserved verbatim and a RetryExhaustedError returned alongside
// the final job state.
func (s *SyncJobScheduler) CompleteSyncJob(ctx context.Context, id string, result map[string]interface{}, jobErr error) (*entity.SyncJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{Kind: "sync job", ID: id}
	}
	if job.Status != entity.JobStatusInProgress {
		s.mu.Unlock()
		return nil, NewValidationError("job %s is not in progress", id)
	}

	now := s.clock.Now()
	if job.StartedAt != nil {
		job.Duration += now.Sub(*job.StartedAt)
	}

	if jobErr == nil {
		job.Status = entity.JobStatusCompleted
		job.CompletedAt = &now
		job.Result = result
	} else {
		job.LastError = jobErr.Error()
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = entity.JobStatusQueued
			job.StartedAt = nil
			next := now.Add(s.RetryDelay(job))
			job.NextAttemptAt = &next
			s.enqueueLocked(job)
		} else {
			job.Status = entity.JobStatusFailed
			job.CompletedAt = &now
		}
	}

	if s.processing != nil && s.processing.ID == id {
		s.processing = nil
	}
	snapshot := *job
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to persist job completion")
	}
	s.notifyTransition(ctx, &snapshot)

	switch snapshot.Status {
	case entity.JobStatusFailed:
		s.logger.Error("Sync job failed permanently",
			zap.String("job_id", id),
			zap.Int("retries", snapshot.RetryCount),
			zap.String("last_error", snapshot.LastError),
		)
	case entity.JobStatusQueued:
		s.logger.Warn("Sync job requeued for retry",
			zap.String("job_id", id),
			zap.Int("retry_count", snapshot.RetryCount),
			zap.Duration("retry_delay", s.RetryDelay(&snapshot)),
		)
	default:
		s.logger.Info("Sync job completed", zap.String("job_id", id), zap.Duration("duration", snapshot.Duration))
	}
	if snapshot.Status == entity.JobStatusFailed {
		return &snapshot, &RetryExhaustedError{JobID: id, LastError: snapshot.LastError}
	}
	return &snapshot, nil
}

// CancelSyncJob cancels a job that has not started executing. Unknown ids and
// jobs already in progress or finished return nil rather than an error, to
// keep the cancel path resilient.
func (s *SyncJobScheduler) CancelSyncJob(ctx context.Context, id string) (*entity.SyncJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || (job.Status != entity.JobStatusPending && job.Status != entity.JobStatusQueued) {
		s.mu.Unlock()
		return nil, nil
	}

	s.removeFromQueueLocked(id)
	now := s.clock.Now()
	job.Status = entity.JobStatusCancelled
	job.CompletedAt = &now
	snapshot := *job
	s.mu.Unlock()

	if err := s.store.SaveJob(ctx, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to persist job cancellation")
	}
	s.notifyTransition(ctx, &snapshot)
	return &snapshot, nil
}

// GetJob returns a snapshot of a job, or nil when unknown.
func (s *SyncJobScheduler) GetJob(id string) *entity.SyncJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// RetryDelay computes the backoff before a requeued job becomes eligible
// again. It is a pure function of the job; CompleteSyncJob stamps the
// resulting window on the job and GetNextJob honors it.
func (s *SyncJobScheduler) RetryDelay(job *entity.SyncJob) time.Duration {
	if job.RetryCount <= 0 {
		return 0
	}
	delay := s.cfg.RetryBackoffBase
	for i := 1; i < job.RetryCount; i++ {
		delay *= 2
		if delay >= s.cfg.RetryBackoffMax {
			return s.cfg.RetryBackoffMax
		}
	}
	if delay > s.cfg.RetryBackoffMax {
		return s.cfg.RetryBackoffMax
	}
	return delay
}

// GetJobStatistics reports totals, a per-status breakdown, and the success
// rate over terminally finished jobs.
func (s *SyncJobScheduler) GetJobStatistics() entity.JobStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := entity.JobStatistics{
		Total:    len(s.jobs),
		ByStatus: make(map[entity.JobStatus]int),
	}
	finished, succeeded := 0, 0
	for _, job := range s.jobs {
		stats.ByStatus[job.Status]++
		switch job.Status {
		case entity.JobStatusCompleted:
			finished++
			succeeded++
		case entity.JobStatusFailed:
			finished++
		}
	}
	if finished > 0 {
		stats.SuccessRate = float64(succeeded) / float64(finished)
	}
	return stats
}

// GetQueueStatus exposes the current in-flight job and the next few queued
// jobs for operator visibility.
func (s *SyncJobScheduler) GetQueueStatus() entity.QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := entity.QueueStatus{QueueDepth: len(s.queue)}
	if s.processing != nil {
		status.ProcessingJob = s.processing.ID
	}
	preview := s.cfg.QueuePreviewSize
	if preview <= 0 || preview > len(s.queue) {
		preview = len(s.queue)
	}
	for _, job := range s.queue[:preview] {
		status.NextJobs = append(status.NextJobs, *job)
	}
	return status
}

// enqueueLocked inserts a job before the first lower-priority entry, keeping
// FIFO order within each priority band. Caller holds the mutex.
func (s *SyncJobScheduler) enqueueLocked(job *entity.SyncJob) {
	pos := len(s.queue)
	for i, queued := range s.queue {
		if queued.Priority.Rank() < job.Priority.Rank() {
			pos = i
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[pos+1:], s.queue[pos:])
	s.queue[pos] = job
}

func (s *SyncJobScheduler) removeFromQueueLocked(id string) {
	for i, queued := range s.queue {
		if queued.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *SyncJobScheduler) notifyTransition(ctx context.Context, job *entity.SyncJob) {
	if s.notifier == nil {
		return
	}
	event := repository.IntegrationEvent{
		ID:         entity.NewID("evt"),
		Type:       repository.EventJobStatusChanged,
		EntityType: job.EntityType,
		SubjectID:  job.ID,
		Payload: map[string]interface{}{
			"status":      string(job.Status),
			"priority":    string(job.Priority),
			"retry_count": job.RetryCount,
		},
		OccurredAt: s.clock.Now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		// Sink failures never fail the sync.
		s.logger.Warn("Notification sink failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
