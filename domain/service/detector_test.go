package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

func newTestDetector(t *testing.T) *DiscrepancyDetector {
	t.Helper()
	return NewDiscrepancyDetector(testDetectionConfig(), newFakeClock(), zaptest.NewLogger(t))
}

func TestDetectNumericWithinTolerance(t *testing.T) {
	detector := newTestDetector(t)

	mes := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}
	erp := entity.Record{"id": "wo-1", "quantityOrdered": 100.005}

	discs := detector.Detect(entity.EntityTypeWorkOrder, "wo-1", mes, erp)
	assert.Empty(t, discs)
}

func TestDetectNumericBeyondTolerance(t *testing.T) {
	detector := newTestDetector(t)

	mes := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}
	erp := entity.Record{"id": "wo-1", "quantityOrdered": 105.0}

	discs := detector.Detect(entity.EntityTypeWorkOrder, "wo-1", mes, erp)
	require.Len(t, discs, 1)
	assert.Equal(t, "quantityOrdered", discs[0].Field)
	assert.Equal(t, entity.SeverityHigh, discs[0].Severity)
	assert.Equal(t, entity.DiscrepancyTypeFieldMismatch, discs[0].Type)
	assert.Contains(t, discs[0].Difference, "values differ by 4.76%")
}

func TestDetectMixedNumericKinds(t *testing.T) {
	detector := newTestDetector(t)

	// JSON decoding yields float64 on one side, typed ints on the other.
	mes := entity.Record{"id": "wo-1", "quantityOrdered": 100}
	erp := entity.Record{"id": "wo-1", "quantityOrdered": 100.0}

	discs := detector.Detect(entity.EntityTypeWorkOrder, "wo-1", mes, erp)
	assert.Empty(t, discs)
}

func TestDetectTimestampSkew(t *testing.T) {
	detector := newTestDetector(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	within := detector.Detect(entity.EntityTypeWorkOrder, "wo-1",
		entity.Record{"dueDate": base},
		entity.Record{"dueDate": base.Add(500 * time.Millisecond)},
	)
	assert.Empty(t, within)

	beyond := detector.Detect(entity.EntityTypeWorkOrder, "wo-1",
		entity.Record{"dueDate": base},
		entity.Record{"dueDate": base.Add(5 * time.Second)},
	)
	require.Len(t, beyond, 1)
	assert.Contains(t, beyond[0].Difference, "timestamps differ by")
}

func TestDetectTimestampStringForm(t *testing.T) {
	detector := newTestDetector(t)

	// One side sends time.Time, the other its RFC3339 rendering.
	discs := detector.Detect(entity.EntityTypeWorkOrder, "wo-1",
		entity.Record{"dueDate": time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		entity.Record{"dueDate": "2025-06-01T10:00:00Z"},
	)
	assert.Empty(t, discs)
}

func TestDetectStringTrimming(t *testing.T) {
	detector := newTestDetector(t)

	equal := detector.Detect(entity.EntityTypeSupplier, "sup-1",
		entity.Record{"name": "Acme Metals "},
		entity.Record{"name": "Acme Metals"},
	)
	assert.Empty(t, equal)

	unequal := detector.Detect(entity.EntityTypeSupplier, "sup-1",
		entity.Record{"contactEmail": "a@acme.test"},
		entity.Record{"contactEmail": "b@acme.test"},
	)
	require.Len(t, unequal, 1)
	assert.Contains(t, unequal[0].Difference, `MES="a@acme.test"`)
}

func TestDetectPresenceMismatch(t *testing.T) {
	detector := newTestDetector(t)

	discs := detector.Detect(entity.EntityTypeSupplier, "sup-1",
		entity.Record{"phone": "555-0100"},
		entity.Record{},
	)
	require.Len(t, discs, 1)
	assert.Equal(t, "value present on one side only", discs[0].Difference)

	bothNil := detector.Detect(entity.EntityTypeSupplier, "sup-1",
		entity.Record{"phone": nil},
		entity.Record{},
	)
	assert.Empty(t, bothNil)
}

func TestDetectSkipsPrimaryID(t *testing.T) {
	detector := newTestDetector(t)

	// Records matched through an alternate key carry different surrogate ids.
	discs := detector.Detect(entity.EntityTypeWorkOrder, "WO-1001",
		entity.Record{"id": "mes-77", "workOrderNumber": "WO-1001"},
		entity.Record{"id": "erp-4012", "workOrderNumber": "WO-1001"},
	)
	assert.Empty(t, discs)
}

func TestDetectStructuredValues(t *testing.T) {
	detector := newTestDetector(t)

	equal := detector.Detect(entity.EntityTypePurchaseOrder, "po-1",
		entity.Record{"lines": []interface{}{"a", "b"}},
		entity.Record{"lines": []interface{}{"a", "b"}},
	)
	assert.Empty(t, equal)

	unequal := detector.Detect(entity.EntityTypePurchaseOrder, "po-1",
		entity.Record{"lines": []interface{}{"a"}},
		entity.Record{"lines": []interface{}{"a", "b"}},
	)
	assert.Len(t, unequal, 1)
}

func TestDetectSeverityClassification(t *testing.T) {
	detector := newTestDetector(t)

	discs := detector.Detect(entity.EntityTypeWorkOrder, "wo-1",
		entity.Record{"status": "released", "notes": "rush"},
		entity.Record{"status": "completed", "notes": "expedite"},
	)
	require.Len(t, discs, 2)

	bySeverity := map[string]entity.Severity{}
	for _, d := range discs {
		bySeverity[d.Field] = d.Severity
	}
	assert.Equal(t, entity.SeverityHigh, bySeverity["status"])
	assert.Equal(t, entity.SeverityLow, bySeverity["notes"])
}

func TestSuggestResolution(t *testing.T) {
	detector := newTestDetector(t)

	tests := []struct {
		name string
		disc entity.Discrepancy
		want entity.SuggestedResolution
	}{
		{
			name: "missing MES value syncs from ERP",
			disc: entity.Discrepancy{Field: "unitCost", MESValue: nil, ERPValue: 12.5, Severity: entity.SeverityLow},
			want: entity.ResolutionSyncCorrection,
		},
		{
			name: "master data field syncs from ERP",
			disc: entity.Discrepancy{Field: "partNumber", MESValue: "P-1", ERPValue: "P-2", Severity: entity.SeverityLow},
			want: entity.ResolutionSyncCorrection,
		},
		{
			name: "high severity needs manual review",
			disc: entity.Discrepancy{Field: "status", MESValue: "a", ERPValue: "b", Severity: entity.SeverityHigh},
			want: entity.ResolutionManualCorrection,
		},
		{
			name: "low severity is acknowledged",
			disc: entity.Discrepancy{Field: "notes", MESValue: "a", ERPValue: "b", Severity: entity.SeverityLow},
			want: entity.ResolutionAcknowledgedDifference,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.SuggestResolution(tt.disc))
		})
	}
}

func TestSummarize(t *testing.T) {
	detector := newTestDetector(t)

	discs := []entity.Discrepancy{
		{Severity: entity.SeverityHigh, EntityType: entity.EntityTypeWorkOrder, Status: entity.DiscrepancyStatusDetected},
		{Severity: entity.SeverityLow, EntityType: entity.EntityTypeWorkOrder, Status: entity.DiscrepancyStatusDetected},
		{Severity: entity.SeverityCritical, EntityType: entity.EntityTypeSupplier, Status: entity.DiscrepancyStatusResolved},
	}

	summary := detector.Summarize(discs)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByEntityType[entity.EntityTypeWorkOrder])
	assert.Equal(t, 1, summary.BySeverity[entity.SeverityHigh])
	// The resolved critical no longer requires action; the low never did.
	assert.Equal(t, 1, summary.RequiringAction)
}
