package ruleset

// FieldSource tells the resolver where a canonical field comes from in
// the raw record: an exact raw name, fallback aliases, or a derivation
// expression over multiple raw fields.
type FieldSource struct {
	Raw        string   `json:"raw,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	Derivation string   `json:"derivation,omitempty"`
}

// FieldSpec describes one canonical field: its declared type, whether a
// record must carry it, and its valid value domain.
type FieldSpec struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"` // string, int, decimal, date, bool, enum
	Required  bool        `json:"required,omitempty"`
	Precision int         `json:"precision,omitempty"` // decimal fields: fractional digits
	Enum      []string    `json:"enum,omitempty"`
	Min       *float64    `json:"min,omitempty"`
	Max       *float64    `json:"max,omitempty"`
	Pattern   string      `json:"pattern,omitempty"`
	Source    FieldSource `json:"source"`
}

// RawNames returns every raw-field name this spec can resolve from, the
// exact name first.
func (f FieldSpec) RawNames() []string {
	names := make([]string, 0, 1+len(f.Aliases()))
	if f.Source.Raw != "" {
		names = append(names, f.Source.Raw)
	}
	names = append(names, f.Source.Aliases...)
	return names
}

// Aliases returns the alias list, never nil.
func (f FieldSpec) Aliases() []string {
	if f.Source.Aliases == nil {
		return []string{}
	}
	return f.Source.Aliases
}

// IsDerived reports whether the field is produced by a derivation
// expression rather than copied from a single raw field.
func (f FieldSpec) IsDerived() bool {
	return f.Source.Derivation != ""
}

// InEnum reports whether v is one of the declared enum values.
func (f FieldSpec) InEnum(v string) bool {
	for _, e := range f.Enum {
		if e == v {
			return true
		}
	}
	return false
}

// CanonicalSchema maps canonical field id to its spec. Owned by a
// RuleSet; read-only after publish.
type CanonicalSchema map[string]FieldSpec

// FieldIDs returns all canonical field ids (unsorted; callers that need
// deterministic order sort the result).
func (s CanonicalSchema) FieldIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// RequiredFields returns the specs of all required fields.
func (s CanonicalSchema) RequiredFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range s {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}
