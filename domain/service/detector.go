package service

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/entity"
	"github.com/steiner385/MachShop-sub017/domain/repository"
)

// DiscrepancyDetector compares two flat record payloads field by field and
// classifies every disagreement. It is a pure computation over already-fetched
// data and safe for concurrent use.
type DiscrepancyDetector struct {
	cfg    config.DetectionConfig
	clock  repository.Clock
	logger *zap.Logger

	criticalFields map[entity.EntityType]map[string]bool
	masterData     map[string]bool
}

// NewDiscrepancyDetector creates a detector with the given comparison policy.
func NewDiscrepancyDetector(cfg config.DetectionConfig, clock repository.Clock, logger *zap.Logger) *DiscrepancyDetector {
	critical := make(map[entity.EntityType]map[string]bool, len(cfg.CriticalFields))
	for entityType, fields := range cfg.CriticalFields {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		critical[entity.EntityType(entityType)] = set
	}
	master := make(map[string]bool, len(cfg.MasterDataFields))
	for _, f := range cfg.MasterDataFields {
		master[f] = true
	}
	return &DiscrepancyDetector{
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
		criticalFields: critical,
		masterData:     master,
	}
}

// Detect compares the MES and ERP payloads of one entity instance and returns
// one discrepancy per unequal field. Equal fields produce nothing. The primary
// id is excluded: records matched through an alternate key legitimately carry
// different surrogate ids.
func (d *DiscrepancyDetector) Detect(entityType entity.EntityType, entityID string, mesData, erpData entity.Record) []entity.Discrepancy {
	now := d.clock.Now()
	var discrepancies []entity.Discrepancy

	for _, field := range unionKeys(mesData, erpData) {
		if field == "id" {
			continue
		}
		mesValue, mesPresent := mesData[field]
		erpValue, erpPresent := erpData[field]

		equal, difference := d.compareValues(mesValue, mesPresent, erpValue, erpPresent)
		if equal {
			continue
		}

		severity := d.classifySeverity(entityType, field)
		disc := entity.Discrepancy{
			ID:         entity.NewID("disc"),
			Type:       entity.DiscrepancyTypeFieldMismatch,
			EntityType: entityType,
			EntityID:   entityID,
			Field:      field,
			MESValue:   mesValue,
			ERPValue:   erpValue,
			Difference: difference,
			Severity:   severity,
			Status:     entity.DiscrepancyStatusDetected,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		disc.Suggestion = d.SuggestResolution(disc)
		discrepancies = append(discrepancies, disc)
	}

	if len(discrepancies) > 0 {
		d.logger.Debug("Discrepancies detected",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Int("count", len(discrepancies)),
		)
	}
	return discrepancies
}

// compareValues applies the per-kind equality rules and, when unequal,
// produces a human-readable difference description.
func (d *DiscrepancyDetector) compareValues(mesValue interface{}, mesPresent bool, erpValue interface{}, erpPresent bool) (bool, string) {
	if !mesPresent || !erpPresent || mesValue == nil || erpValue == nil {
		if (mesPresent && mesValue != nil) == (erpPresent && erpValue != nil) {
			return true, ""
		}
		return false, "value present on one side only"
	}

	if mesNum, ok := toFloat(mesValue); ok {
		if erpNum, ok := toFloat(erpValue); ok {
			return d.compareNumbers(mesNum, erpNum)
		}
	}

	if mesTime, ok := toTime(mesValue); ok {
		if erpTime, ok := toTime(erpValue); ok {
			return d.compareTimes(mesTime, erpTime)
		}
	}

	if mesStr, ok := mesValue.(string); ok {
		if erpStr, ok := erpValue.(string); ok {
			if strings.TrimSpace(mesStr) == strings.TrimSpace(erpStr) {
				return true, ""
			}
			return false, fmt.Sprintf("MES=%q ERP=%q", mesStr, erpStr)
		}
	}

	if reflect.DeepEqual(mesValue, erpValue) {
		return true, ""
	}
	return false, fmt.Sprintf("MES=%v ERP=%v", mesValue, erpValue)
}

func (d *DiscrepancyDetector) compareNumbers(a, b float64) (bool, string) {
	if a == b {
		return true, ""
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return true, ""
	}
	relative := math.Abs(a-b) / scale
	if relative <= d.cfg.NumericTolerance {
		return true, ""
	}
	return false, fmt.Sprintf("values differ by %.2f%% (MES=%v ERP=%v)", relative*100, a, b)
}

func (d *DiscrepancyDetector) compareTimes(a, b time.Time) (bool, string) {
	skew := a.Sub(b)
	if skew < 0 {
		skew = -skew
	}
	if skew <= d.cfg.TimestampTolerance {
		return true, ""
	}
	return false, fmt.Sprintf("timestamps differ by %s (MES=%s ERP=%s)",
		skew, a.Format(time.RFC3339), b.Format(time.RFC3339))
}

func (d *DiscrepancyDetector) classifySeverity(entityType entity.EntityType, field string) entity.Severity {
	if d.criticalFields[entityType][field] {
		return entity.SeverityHigh
	}
	return entity.SeverityLow
}

// SuggestResolution recommends how a discrepancy should be handled. It is a
// suggestion only and mutates nothing.
func (d *DiscrepancyDetector) SuggestResolution(disc entity.Discrepancy) entity.SuggestedResolution {
	if disc.MESValue == nil {
		return entity.ResolutionSyncCorrection
	}
	if d.masterData[disc.Field] {
		return entity.ResolutionSyncCorrection
	}
	if disc.Severity == entity.SeverityHigh || disc.Severity == entity.SeverityCritical {
		return entity.ResolutionManualCorrection
	}
	return entity.ResolutionAcknowledgedDifference
}

// Summarize aggregates discrepancies by severity and entity type, and counts
// those still requiring operator action.
func (d *DiscrepancyDetector) Summarize(discrepancies []entity.Discrepancy) entity.DiscrepancySummary {
	summary := entity.DiscrepancySummary{
		Total:        len(discrepancies),
		BySeverity:   make(map[entity.Severity]int),
		ByEntityType: make(map[entity.EntityType]int),
	}
	for _, disc := range discrepancies {
		summary.BySeverity[disc.Severity]++
		summary.ByEntityType[disc.EntityType]++
		if disc.Severity.RequiresAction() && disc.Status == entity.DiscrepancyStatusDetected {
			summary.RequiringAction++
		}
	}
	return summary
}

func unionKeys(a, b entity.Record) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
