package entity

import "time"

// OperationStatus is the outcome of one sync executor run.
type OperationStatus string

const (
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusConflict  OperationStatus = "conflict"
	OperationStatusFailed    OperationStatus = "failed"
)

// SyncDirection names which system's values flow to which.
type SyncDirection string

const (
	DirectionMESToERP SyncDirection = "mes_to_erp"
	DirectionERPToMES SyncDirection = "erp_to_mes"
)

// FieldConflict captures one differing field inside a sync operation.
type FieldConflict struct {
	Field       string      `json:"field"`
	SourceValue interface{} `json:"source_value"`
	TargetValue interface{} `json:"target_value"`
}

// SyncOperation records the result of one SyncExecutor run, either a single
// entity compare/apply or the aggregate of a batch. Immutable once written; retry
// creates a fresh evaluation reusing the same entity identity.
type SyncOperation struct {
	ID            string        `json:"id"`
	IntegrationID string        `json:"integration_id"`
	EntityType    EntityType    `json:"entity_type"`
	EntityID      string        `json:"entity_id,omitempty"`
	Direction     SyncDirection `json:"direction"`
	SourceSystem  System        `json:"source_system"`
	TargetSystem  System        `json:"target_system"`

	Status            OperationStatus `json:"status"`
	RecordsProcessed  int             `json:"records_processed"`
	RecordsSucceeded  int             `json:"records_succeeded"`
	RecordsConflicted int             `json:"records_conflicted"`
	RecordsFailed     int             `json:"records_failed"`
	ChangedFields     []string        `json:"changed_fields,omitempty"`
	ConflictDetails   []FieldConflict `json:"conflict_details,omitempty"`
	Forced            bool            `json:"forced"`
	Error             string          `json:"error,omitempty"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}
