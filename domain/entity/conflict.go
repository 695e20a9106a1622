package entity

import "time"

// ConflictStatus tracks the resolution workflow of a conflict.
type ConflictStatus string

const (
	ConflictStatusUnresolved ConflictStatus = "unresolved"
	ConflictStatusResolved   ConflictStatus = "resolved"
	ConflictStatusApproved   ConflictStatus = "approved"
	ConflictStatusRejected   ConflictStatus = "rejected"
)

// ResolutionStrategy is the closed set of policies for picking a winning value.
type ResolutionStrategy string

const (
	StrategyLastWriteWins  ResolutionStrategy = "last_write_wins"
	StrategySourcePriority ResolutionStrategy = "source_priority"
	StrategyTargetPriority ResolutionStrategy = "target_priority"
	StrategyCustom         ResolutionStrategy = "custom"
)

// Valid reports whether s is a known strategy.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case StrategyLastWriteWins, StrategySourcePriority, StrategyTargetPriority, StrategyCustom:
		return true
	}
	return false
}

// Resolution names which side's value won.
type Resolution string

const (
	ResolutionSource Resolution = "source"
	ResolutionTarget Resolution = "target"
	ResolutionCustom Resolution = "custom"
)

// Conflict is a disagreement selected for structured, policy-driven resolution
// within a sync operation.
type Conflict struct {
	ID          string     `json:"id"`
	OperationID string     `json:"operation_id"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	FieldName   string     `json:"field_name"`

	SourceValue     interface{} `json:"source_value"`
	TargetValue     interface{} `json:"target_value"`
	SourceSystem    System      `json:"source_system"`
	TargetSystem    System      `json:"target_system"`
	SourceTimestamp time.Time   `json:"source_timestamp"`
	TargetTimestamp time.Time   `json:"target_timestamp"`

	Severity Severity       `json:"severity"`
	Status   ConflictStatus `json:"status"`

	Strategy      ResolutionStrategy `json:"strategy,omitempty"`
	Resolution    Resolution         `json:"resolution,omitempty"`
	ResolvedValue interface{}        `json:"resolved_value,omitempty"`
	ResolvedBy    string             `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
	Notes         string             `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolutionRule is a standing policy applied to conflicts matching an entity
// type and field. The highest-priority enabled match wins.
type ResolutionRule struct {
	ID         string             `json:"id"`
	EntityType EntityType         `json:"entity_type"`
	FieldName  string             `json:"field_name"`
	Strategy   ResolutionStrategy `json:"strategy"`
	Enabled    bool               `json:"enabled"`
	Priority   int                `json:"priority"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
