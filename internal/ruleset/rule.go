package ruleset

import "fmt"

// Rule kinds. Evaluation behavior per kind is fixed; the evaluator
// switches on the kind rather than dispatching through an interface so
// execution order and side effects stay explicit and auditable.
const (
	KindValidation     = "validation"
	KindCalculation    = "calculation"
	KindTransformation = "transformation"
)

// Severities. A blocking failure prevents report compilation; warnings
// and informational findings are carried in the manifest only.
const (
	SeverityBlocking = "blocking"
	SeverityWarning  = "warning"
	SeverityInfo     = "informational"
)

// Rule is one versioned regulatory rule. A published rule is never
// edited; a changed rule is a new Rule with a new Version.
type Rule struct {
	ID          string         `json:"id"`
	Version     string         `json:"version"`
	Kind        string         `json:"kind"`
	Targets     []string       `json:"targets"`
	Inputs      []string       `json:"inputs,omitempty"` // source fields for lineage on derivations
	Expression  string         `json:"expression"`
	Severity    string         `json:"severity"`
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// VersionID returns the id the lineage manifest records for this rule:
// "id@version".
func (r *Rule) VersionID() string {
	return r.ID + "@" + r.Version
}

// Target returns the primary target field (the first declared target).
func (r *Rule) Target() string {
	if len(r.Targets) == 0 {
		return ""
	}
	return r.Targets[0]
}

// Validate checks the rule definition for structural problems. A
// malformed rule is a hard failure at publish time, never discovered
// mid-evaluation.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if r.Version == "" {
		return fmt.Errorf("rule %s has no version", r.ID)
	}
	switch r.Kind {
	case KindValidation, KindCalculation, KindTransformation:
	default:
		return fmt.Errorf("rule %s has unknown kind %q", r.ID, r.Kind)
	}
	switch r.Severity {
	case SeverityBlocking, SeverityWarning, SeverityInfo:
	default:
		return fmt.Errorf("rule %s has unknown severity %q", r.ID, r.Severity)
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("rule %s has no target fields", r.ID)
	}
	if r.Expression == "" {
		return fmt.Errorf("rule %s has no expression", r.ID)
	}
	return nil
}
