package pipeline

// Entry links one output field to the source fields and the rule
// version that produced it.
type Entry struct {
	OutputField  string   `json:"output_field"`
	SourceFields []string `json:"source_fields"`
	RuleVersion  string   `json:"rule"`
	Record       int      `json:"record"`
}

// Lineage is the append-only derivation record for one pipeline run.
// Re-deriving the same output field appends another entry: the chain is
// kept whole so audit can answer "every rule that touched this field",
// not just the last one.
type Lineage struct {
	entries []Entry
}

func NewLineage() *Lineage {
	return &Lineage{}
}

// Record appends a derivation. Never overwrites.
func (l *Lineage) Record(record int, outputField string, sourceFields []string, ruleVersion string) {
	srcs := make([]string, len(sourceFields))
	copy(srcs, sourceFields)
	l.entries = append(l.entries, Entry{
		OutputField:  outputField,
		SourceFields: srcs,
		RuleVersion:  ruleVersion,
		Record:       record,
	})
}

// Entries returns the manifest in append order.
func (l *Lineage) Entries() []Entry {
	return l.entries
}

// ChainFor returns every entry whose output is the given field, in the
// order the derivations happened.
func (l *Lineage) ChainFor(field string) []Entry {
	var chain []Entry
	for _, e := range l.entries {
		if e.OutputField == field {
			chain = append(chain, e)
		}
	}
	return chain
}

// Append merges another lineage onto this one, preserving order. Used
// at the fan-in point to combine per-record lineages deterministically.
func (l *Lineage) Append(other *Lineage) {
	l.entries = append(l.entries, other.entries...)
}
