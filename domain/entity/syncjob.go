package entity

import "time"

// JobPriority orders jobs in the scheduler queue.
type JobPriority string

const (
	PriorityCritical JobPriority = "critical"
	PriorityHigh     JobPriority = "high"
	PriorityNormal   JobPriority = "normal"
	PriorityLow      JobPriority = "low"
)

// Rank maps a priority to its queue ordering weight; higher runs first.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// JobStatus tracks the sync job state machine.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// OperationType names the kind of work a sync job performs.
type OperationType string

const (
	OperationTypeFullSync        OperationType = "full_sync"
	OperationTypeIncrementalSync OperationType = "incremental_sync"
	OperationTypeCorrection      OperationType = "correction"
)

// SyncJob is one scheduled, retryable unit of synchronization work.
type SyncJob struct {
	ID            string                 `json:"id"`
	IntegrationID string                 `json:"integration_id"`
	EntityType    EntityType             `json:"entity_type"`
	OperationType OperationType          `json:"operation_type"`
	Priority      JobPriority            `json:"priority"`
	Status        JobStatus              `json:"status"`
	RetryCount    int                    `json:"retry_count"`
	MaxRetries    int                    `json:"max_retries"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Duration      time.Duration          `json:"duration"`
}

// JobStatistics summarizes scheduler throughput.
type JobStatistics struct {
	Total       int               `json:"total"`
	ByStatus    map[JobStatus]int `json:"by_status"`
	SuccessRate float64           `json:"success_rate"`
}

// QueueStatus is a point-in-time view of the scheduler queue.
type QueueStatus struct {
	QueueDepth    int       `json:"queue_depth"`
	ProcessingJob string    `json:"processing_job,omitempty"`
	NextJobs      []SyncJob `json:"next_jobs,omitempty"`
}
