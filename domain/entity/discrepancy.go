package entity

import "time"

// Severity classifies how serious a disagreement between the two systems is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// RequiresAction reports whether a discrepancy of this severity needs operator
// attention rather than passive acknowledgement.
func (s Severity) RequiresAction() bool {
	return s != SeverityLow
}

// DiscrepancyStatus tracks the lifecycle of a detected discrepancy.
type DiscrepancyStatus string

const (
	DiscrepancyStatusDetected DiscrepancyStatus = "detected"
	DiscrepancyStatusResolved DiscrepancyStatus = "resolved"
	DiscrepancyStatusIgnored  DiscrepancyStatus = "ignored"
)

// SuggestedResolution is the detector's non-binding recommendation for how a
// discrepancy should be handled.
type SuggestedResolution string

const (
	ResolutionSyncCorrection         SuggestedResolution = "sync_correction"
	ResolutionManualCorrection       SuggestedResolution = "manual_correction"
	ResolutionAcknowledgedDifference SuggestedResolution = "acknowledged_difference"
)

// DiscrepancyType distinguishes field-level mismatches from records present on
// only one side.
type DiscrepancyType string

const (
	DiscrepancyTypeFieldMismatch DiscrepancyType = "field_mismatch"
	DiscrepancyTypeMissingInMES  DiscrepancyType = "missing_in_mes"
	DiscrepancyTypeMissingInERP  DiscrepancyType = "missing_in_erp"
)

// Discrepancy is one disagreeing field between the MES and ERP views of one
// entity instance. Immutable once detected except for status/resolution fields.
type Discrepancy struct {
	ID               string              `json:"id"`
	ReconciliationID string              `json:"reconciliation_id"`
	Type             DiscrepancyType     `json:"type"`
	EntityType       EntityType          `json:"entity_type"`
	EntityID         string              `json:"entity_id"`
	Field            string              `json:"field"`
	MESValue         interface{}         `json:"mes_value"`
	ERPValue         interface{}         `json:"erp_value"`
	Difference       string              `json:"difference"`
	Severity         Severity            `json:"severity"`
	Status           DiscrepancyStatus   `json:"status"`
	Suggestion       SuggestedResolution `json:"suggestion,omitempty"`
	Description      string              `json:"description,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// DiscrepancySummary aggregates a set of discrepancies for reporting.
type DiscrepancySummary struct {
	Total           int                `json:"total"`
	BySeverity      map[Severity]int   `json:"by_severity"`
	ByEntityType    map[EntityType]int `json:"by_entity_type"`
	RequiringAction int                `json:"requiring_action"`
}
