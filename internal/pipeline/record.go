// Package pipeline implements the deterministic report preparation
// core: raw records are resolved against a rule set's canonical
// schema, evaluated against its rules in declared order, and the
// per-field verdicts are aggregated into a report-level validation
// result. Every derivation is recorded in the run's lineage.
package pipeline

// DataRecord is a raw record at ingress: raw field names mapped to
// untyped values. Produced by an external data source; the pipeline
// never mutates it.
type DataRecord map[string]any

// ResolvedRecord is one record after field resolution: canonical field
// ids mapped to typed values, plus the canonical fields that could not
// be resolved. Scoped to a single pipeline run.
type ResolvedRecord struct {
	Fields     map[string]any
	Unresolved map[string]bool
}

func NewResolvedRecord() *ResolvedRecord {
	return &ResolvedRecord{
		Fields:     make(map[string]any),
		Unresolved: make(map[string]bool),
	}
}

// Set stores a typed value for a canonical field and clears any
// unresolved marker for it (a derivation can fill a previously missing
// field).
func (r *ResolvedRecord) Set(field string, value any) {
	r.Fields[field] = value
	delete(r.Unresolved, field)
}

// MarkUnresolved records that a canonical field has no usable value.
// Unresolved is not failed: whether it matters is the rule set's call.
func (r *ResolvedRecord) MarkUnresolved(field string) {
	r.Unresolved[field] = true
}

// Has reports whether the field resolved to a value.
func (r *ResolvedRecord) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}
