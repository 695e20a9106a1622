package entity

// Record is a flat key/value snapshot of one entity instance as returned by a
// record provider. The core never interprets fields beyond the comparison
// semantics in the detector; providers own the shape.
type Record map[string]interface{}

// ID returns the record's primary identifier, or "" when absent.
func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// StringField returns the named field as a string, or "" when absent or not a
// string.
func (r Record) StringField(name string) string {
	if v, ok := r[name].(string); ok {
		return v
	}
	return ""
}

// EntityType identifies a reconcilable entity population.
type EntityType string

const (
	EntityTypeSupplier      EntityType = "supplier"
	EntityTypePurchaseOrder EntityType = "purchase_order"
	EntityTypeWorkOrder     EntityType = "work_order"
	EntityTypeInventory     EntityType = "inventory"
)

// System identifies one side of the integration.
type System string

const (
	SystemMES System = "MES"
	SystemERP System = "ERP"
)
