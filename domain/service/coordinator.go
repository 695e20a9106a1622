package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// EntityReconciliationCoordinator matches the MES and ERP populations of one
// entity type and delegates each matched pair to the discrepancy detector.
// It produces a result value and has no side effects beyond it.
type EntityReconciliationCoordinator struct {
	cfg      config.DetectionConfig
	detector *DiscrepancyDetector
	provider repository.RecordProvider
	clock    repository.Clock
	logger   *zap.Logger
}

// NewEntityReconciliationCoordinator creates a coordinator over the given
// record provider.
func NewEntityReconciliationCoordinator(
	cfg config.DetectionConfig,
	detector *DiscrepancyDetector,
	provider repository.RecordProvider,
	clock repository.Clock,
	logger *zap.Logger,
) *EntityReconciliationCoordinator {
	return &EntityReconciliationCoordinator{
		cfg:      cfg,
		detector: detector,
		provider: provider,
		clock:    clock,
		logger:   logger,
	}
}

// Reconcile fetches both sides for one entity type and compares them. A
// single-side provider failure degrades the result (recorded in FetchErrors)
// instead of aborting; only a double failure returns an error carrying both
// sides' failures, since there is nothing left to compare.
func (c *EntityReconciliationCoordinator) Reconcile(ctx context.Context, entityType entity.EntityType) (*entity.ReconciliationResult, error) {
	var (
		mesRecords, erpRecords []entity.Record
		fetchErrors            []string
	)

	mesRecords, mesErr := c.provider.FetchRecords(ctx, entityType, entity.SystemMES, repository.RecordFilter{})
	if mesErr != nil {
		c.logger.Warn("MES fetch failed during reconciliation",
			zap.String("entity_type", string(entityType)), zap.Error(mesErr))
		fetchErrors = append(fetchErrors, fmt.Sprintf("MES fetch failed: %v", mesErr))
	}
	erpRecords, erpErr := c.provider.FetchRecords(ctx, entityType, entity.SystemERP, repository.RecordFilter{})
	if erpErr != nil {
		c.logger.Warn("ERP fetch failed during reconciliation",
			zap.String("entity_type", string(entityType)), zap.Error(erpErr))
		fetchErrors = append(fetchErrors, fmt.Sprintf("ERP fetch failed: %v", erpErr))
	}

	if mesErr != nil && erpErr != nil {
		return nil, stderrors.Join(
			&ProviderError{Side: entity.SystemMES, Err: mesErr},
			&ProviderError{Side: entity.SystemERP, Err: erpErr},
		)
	}

	result := c.ReconcileRecords(entityType, mesRecords, erpRecords)
	result.FetchErrors = fetchErrors
	return result, nil
}

// ReconcileRecords compares two externally-supplied record collections.
// Records are matched by primary id first, then by the entity type's declared
// alternate business key; records present on one side only are reported as
// missing/extra pseudo-discrepancies rather than silently dropped.
func (c *EntityReconciliationCoordinator) ReconcileRecords(entityType entity.EntityType, mesRecords, erpRecords []entity.Record) *entity.ReconciliationResult {
	altKey := c.cfg.AlternateKeyFor(entityType)

	erpByID := make(map[string]entity.Record, len(erpRecords))
	erpByAltKey := make(map[string]entity.Record)
	for _, rec := range erpRecords {
		if id := rec.ID(); id != "" {
			erpByID[id] = rec
		}
		if altKey != "" {
			if key := rec.StringField(altKey); key != "" {
				erpByAltKey[key] = rec
			}
		}
	}

	result := &entity.ReconciliationResult{
		EntityType:      entityType,
		TotalMESRecords: len(mesRecords),
		TotalERPRecords: len(erpRecords),
	}

	matchedERP := make(map[string]bool, len(erpRecords))
	for _, mesRec := range mesRecords {
		erpRec, matchID, found := c.matchCounterpart(mesRec, altKey, erpByID, erpByAltKey)
		if !found {
			result.Discrepancies = append(result.Discrepancies,
				c.missingRecordDiscrepancy(entityType, recordIdentity(mesRec, altKey), entity.DiscrepancyTypeMissingInERP, mesRec))
			continue
		}
		matchedERP[matchID] = true
		result.MatchedRecords++

		discs := c.detector.Detect(entityType, recordIdentity(mesRec, altKey), mesRec, erpRec)
		result.Discrepancies = append(result.Discrepancies, discs...)
	}

	for _, erpRec := range erpRecords {
		if matchedERP[recordIdentity(erpRec, altKey)] {
			continue
		}
		result.Discrepancies = append(result.Discrepancies,
			c.missingRecordDiscrepancy(entityType, recordIdentity(erpRec, altKey), entity.DiscrepancyTypeMissingInMES, erpRec))
	}

	c.logger.Info("Reconciliation pass completed",
		zap.String("entity_type", string(entityType)),
		zap.Int("mes_records", result.TotalMESRecords),
		zap.Int("erp_records", result.TotalERPRecords),
		zap.Int("matched", result.MatchedRecords),
		zap.Int("discrepancies", len(result.Discrepancies)),
	)
	return result
}

// ReconcileAll fans reconciliation out across entity types. Each type is an
// independent computation over its own snapshot, so they run concurrently.
func (c *EntityReconciliationCoordinator) ReconcileAll(ctx context.Context, entityTypes []entity.EntityType) ([]*entity.ReconciliationResult, error) {
	results := make([]*entity.ReconciliationResult, len(entityTypes))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i, entityType := range entityTypes {
		i, entityType := i, entityType
		g.Go(func() error {
			result, err := c.Reconcile(ctx, entityType)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *EntityReconciliationCoordinator) matchCounterpart(
	mesRec entity.Record,
	altKey string,
	erpByID, erpByAltKey map[string]entity.Record,
) (entity.Record, string, bool) {
	if id := mesRec.ID(); id != "" {
		if erpRec, ok := erpByID[id]; ok {
			return erpRec, recordIdentity(erpRec, altKey), true
		}
	}
	if altKey != "" {
		if key := mesRec.StringField(altKey); key != "" {
			if erpRec, ok := erpByAltKey[key]; ok {
				return erpRec, recordIdentity(erpRec, altKey), true
			}
		}
	}
	return nil, "", false
}

func (c *EntityReconciliationCoordinator) missingRecordDiscrepancy(
	entityType entity.EntityType,
	entityID string,
	discType entity.DiscrepancyType,
	rec entity.Record,
) entity.Discrepancy {
	now := c.clock.Now()
	disc := entity.Discrepancy{
		ID:         entity.NewID("disc"),
		Type:       discType,
		EntityType: entityType,
		EntityID:   entityID,
		Field:      "*",
		Severity:   entity.SeverityHigh,
		Status:     entity.DiscrepancyStatusDetected,
		Suggestion: entity.ResolutionManualCorrection,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	switch discType {
	case entity.DiscrepancyTypeMissingInERP:
		disc.MESValue = rec
		disc.Difference = "record exists in MES but not in ERP"
	case entity.DiscrepancyTypeMissingInMES:
		disc.ERPValue = rec
		disc.Difference = "record exists in ERP but not in MES"
		disc.Suggestion = entity.ResolutionSyncCorrection
	}
	return disc
}

// recordIdentity prefers the primary id and falls back to the alternate
// business key, so one-sided records still carry a stable identity.
func recordIdentity(rec entity.Record, altKey string) string {
	if id := rec.ID(); id != "" {
		return id
	}
	if altKey != "" {
		return rec.StringField(altKey)
	}
	return ""
}
