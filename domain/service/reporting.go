package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// ReconciliationReportBuilder opens reports for reconciliation runs,
// accumulates discrepancy tallies, finalizes status and the data quality
// score, and serves history/trend queries.
type ReconciliationReportBuilder struct {
	cfg      config.ReportingConfig
	store    repository.ReportStore
	clock    repository.Clock
	notifier repository.Notifier
	logger   *zap.Logger
}

// NewReconciliationReportBuilder creates a report builder backed by the given
// store. The notifier may be nil.
func NewReconciliationReportBuilder(
	cfg config.ReportingConfig,
	store repository.ReportStore,
	clock repository.Clock,
	notifier repository.Notifier,
	logger *zap.Logger,
) *ReconciliationReportBuilder {
	return &ReconciliationReportBuilder{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateReport opens a report in progress with zeroed counters.
func (b *ReconciliationReportBuilder) CreateReport(ctx context.Context, integrationID string, entityType entity.EntityType, periodStart, periodEnd time.Time) (*entity.ReconciliationReport, error) {
	if integrationID == "" {
		return nil, NewValidationError("integration id is required")
	}
	if periodEnd.Before(periodStart) {
		return nil, NewValidationError("period end %s precedes period start %s", periodEnd, periodStart)
	}

	report := &entity.ReconciliationReport{
		ID:               entity.NewID("report"),
		IntegrationID:    integrationID,
		EntityType:       entityType,
		Status:           entity.ReportStatusInProgress,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		StartedAt:        b.clock.Now(),
		CountsBySeverity: make(map[entity.Severity]int),
	}
	if err := b.store.SaveReport(ctx, report); err != nil {
		return nil, errors.Wrap(err, "failed to save report")
	}
	return report, nil
}

// FinalizeReport closes the report against the reconciliation result. It
// returns a new report value rather than mutating the input, so concurrent
// runs never share mutable state. Finalization happens exactly once per run,
// including runs degraded by provider failures.
func (b *ReconciliationReportBuilder) FinalizeReport(ctx context.Context, report *entity.ReconciliationReport, result *entity.ReconciliationResult) (*entity.ReconciliationReport, error) {
	if report.Status != entity.ReportStatusInProgress {
		return nil, NewValidationError("report %s is already finalized", report.ID)
	}

	final := *report
	now := b.clock.Now()
	final.CompletedAt = &now
	final.Duration = now.Sub(report.StartedAt)

	final.MESRecordCount = result.TotalMESRecords
	final.ERPRecordCount = result.TotalERPRecords
	final.MatchedRecordCount = result.MatchedRecords
	final.DiscrepancyCount = len(result.Discrepancies)
	final.DataQualityIssues = append([]string(nil), result.FetchErrors...)

	final.CountsBySeverity = make(map[entity.Severity]int)
	discrepancies := make([]entity.Discrepancy, len(result.Discrepancies))
	for i, disc := range result.Discrepancies {
		disc.ReconciliationID = final.ID
		discrepancies[i] = disc
		final.CountsBySeverity[disc.Severity]++
	}
	final.Discrepancies = discrepancies

	if final.DiscrepancyCount == 0 {
		final.Status = entity.ReportStatusCompletedClean
	} else {
		final.Status = entity.ReportStatusCompletedWithDiscrepancies
	}

	final.Summary = b.buildSummary(&final)
	final.Recommendations = b.buildRecommendations(&final)

	if err := b.store.SaveReport(ctx, &final); err != nil {
		return nil, errors.Wrap(err, "failed to save finalized report")
	}

	b.notify(ctx, repository.IntegrationEvent{
		ID:         entity.NewID("evt"),
		Type:       repository.EventReportFinalized,
		EntityType: final.EntityType,
		SubjectID:  final.ID,
		Payload: map[string]interface{}{
			"status":             string(final.Status),
			"discrepancy_count":  final.DiscrepancyCount,
			"data_quality_score": b.CalculateDataQualityScore(&final),
		},
		OccurredAt: now,
	})

	b.logger.Info("Reconciliation report finalized",
		zap.String("report_id", final.ID),
		zap.String("entity_type", string(final.EntityType)),
		zap.String("status", string(final.Status)),
		zap.Int("discrepancies", final.DiscrepancyCount),
	)
	return &final, nil
}

// CalculateDataQualityScore scores a report from 0 to 100. With no records on
// either side there is no basis to penalize, so the score is 100. Otherwise a
// weighted penalty is subtracted per discrepancy, critical weighted far above
// high, high above medium and low, floored at zero. Data quality issues from
// partial fetches are penalized at the high weight.
func (b *ReconciliationReportBuilder) CalculateDataQualityScore(report *entity.ReconciliationReport) float64 {
	if report.MESRecordCount+report.ERPRecordCount == 0 {
		return 100
	}

	score := 100.0
	score -= float64(report.CountsBySeverity[entity.SeverityCritical]) * b.cfg.PenaltyCritical
	score -= float64(report.CountsBySeverity[entity.SeverityHigh]) * b.cfg.PenaltyHigh
	score -= float64(report.CountsBySeverity[entity.SeverityMedium]) * b.cfg.PenaltyMedium
	score -= float64(report.CountsBySeverity[entity.SeverityLow]) * b.cfg.PenaltyLow
	score -= float64(len(report.DataQualityIssues)) * b.cfg.PenaltyHigh

	if score < 0 {
		return 0
	}
	return score
}

// GetHistory returns prior reports for an entity type within the lookback
// window, newest first.
func (b *ReconciliationReportBuilder) GetHistory(ctx context.Context, entityType entity.EntityType, lookback time.Duration) ([]entity.ReconciliationReport, error) {
	if lookback <= 0 || lookback > b.cfg.MaxTrendLookback {
		lookback = b.cfg.MaxTrendLookback
	}
	since := b.clock.Now().Add(-lookback)
	reports, err := b.store.ListReports(ctx, entityType, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reports")
	}
	return reports, nil
}

// GetTrends condenses report history into trend points. The lookback is
// capped at the configured maximum even when a larger window is requested.
func (b *ReconciliationReportBuilder) GetTrends(ctx context.Context, entityType entity.EntityType, lookback time.Duration) ([]entity.TrendPoint, error) {
	reports, err := b.GetHistory(ctx, entityType, lookback)
	if err != nil {
		return nil, err
	}

	points := make([]entity.TrendPoint, 0, len(reports))
	for i := range reports {
		report := reports[i]
		if report.Status == entity.ReportStatusInProgress || report.CompletedAt == nil {
			continue
		}
		points = append(points, entity.TrendPoint{
			ReportID:         report.ID,
			EntityType:       report.EntityType,
			CompletedAt:      *report.CompletedAt,
			Status:           report.Status,
			DiscrepancyCount: report.DiscrepancyCount,
			MatchedRecords:   report.MatchedRecordCount,
			DataQualityScore: b.CalculateDataQualityScore(&report),
		})
	}
	return points, nil
}

func (b *ReconciliationReportBuilder) buildSummary(report *entity.ReconciliationReport) string {
	matchRate := 0.0
	if report.MESRecordCount > 0 {
		matchRate = float64(report.MatchedRecordCount) / float64(report.MESRecordCount) * 100
	}
	return fmt.Sprintf(
		"Reconciled %s records: %d MES and %d ERP records processed, %d matched (%.1f%%), %d discrepancies found.",
		report.EntityType,
		report.MESRecordCount,
		report.ERPRecordCount,
		report.MatchedRecordCount,
		matchRate,
		report.DiscrepancyCount,
	)
}

func (b *ReconciliationReportBuilder) buildRecommendations(report *entity.ReconciliationReport) []string {
	if report.DiscrepancyCount == 0 && len(report.DataQualityIssues) == 0 {
		return []string{"No discrepancies detected; MES and ERP are in sync for this entity type."}
	}

	var recs []string
	if report.CountsBySeverity[entity.SeverityCritical] > 0 {
		recs = append(recs, fmt.Sprintf(
			"URGENT: %d critical discrepancies require immediate investigation.",
			report.CountsBySeverity[entity.SeverityCritical]))
	}
	if high := report.CountsBySeverity[entity.SeverityHigh]; high > 0 {
		recs = append(recs, fmt.Sprintf(
			"Review %d high-severity discrepancies and schedule corrective sync jobs.", high))
	}
	if report.DiscrepancyCount > 20 {
		recs = append(recs, "Discrepancy volume is elevated; verify integration mappings and recent bulk changes.")
	} else if report.DiscrepancyCount > 0 {
		recs = append(recs, fmt.Sprintf(
			"Resolve the remaining %d discrepancies through the conflict resolution workflow.",
			report.DiscrepancyCount))
	}
	for _, issue := range report.DataQualityIssues {
		recs = append(recs, fmt.Sprintf("Data quality issue: %s (results for this run are partial).", issue))
	}
	return recs
}

func (b *ReconciliationReportBuilder) notify(ctx context.Context, event repository.IntegrationEvent) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(ctx, event); err != nil {
		// Sink failures never fail the run.
		b.logger.Warn("Notification sink failed", zap.String("event_type", event.Type), zap.Error(err))
	}
}
