package entity

import "time"

// ReportStatus tracks the lifecycle of a reconciliation run.
type ReportStatus string

const (
	ReportStatusInProgress                 ReportStatus = "in_progress"
	ReportStatusCompletedClean             ReportStatus = "completed_clean"
	ReportStatusCompletedWithDiscrepancies ReportStatus = "completed_with_discrepancies"
)

// ReconciliationReport records one reconciliation run for one entity type and
// time window. Created in progress, mutated only by the owning run, finalized
// exactly once.
type ReconciliationReport struct {
	ID            string        `json:"id"`
	IntegrationID string        `json:"integration_id"`
	EntityType    EntityType    `json:"entity_type"`
	Status        ReportStatus  `json:"status"`
	PeriodStart   time.Time     `json:"period_start"`
	PeriodEnd     time.Time     `json:"period_end"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	Duration      time.Duration `json:"duration"`

	MESRecordCount     int `json:"mes_record_count"`
	ERPRecordCount     int `json:"erp_record_count"`
	MatchedRecordCount int `json:"matched_record_count"`

	DiscrepancyCount  int              `json:"discrepancy_count"`
	CountsBySeverity  map[Severity]int `json:"counts_by_severity"`
	Discrepancies     []Discrepancy    `json:"discrepancies,omitempty"`
	DataQualityIssues []string         `json:"data_quality_issues,omitempty"`

	Summary         string   `json:"summary,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// TrendPoint is one report condensed for trend queries.
type TrendPoint struct {
	ReportID         string       `json:"report_id"`
	EntityType       EntityType   `json:"entity_type"`
	CompletedAt      time.Time    `json:"completed_at"`
	Status           ReportStatus `json:"status"`
	DiscrepancyCount int          `json:"discrepancy_count"`
	MatchedRecords   int          `json:"matched_records"`
	DataQualityScore float64      `json:"data_quality_score"`
}

// ReconciliationResult is the coordinator's output for one entity type. It is
// a value; persistence is the caller's responsibility.
type ReconciliationResult struct {
	EntityType      EntityType    `json:"entity_type"`
	TotalMESRecords int           `json:"total_mes_records"`
	TotalERPRecords int           `json:"total_erp_records"`
	MatchedRecords  int           `json:"matched_records"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	FetchErrors     []string      `json:"fetch_errors,omitempty"`
}
