// Package ruleset defines the versioned regulatory rule model: rule
// sets bounded by effective windows, the rules they own, and the
// canonical field schema records are resolved against. Rule sets are
// published by an upstream ingestion collaborator and are read-only to
// the pipeline thereafter.
package ruleset

import (
	"fmt"
	"time"
)

// RuleSet is the authoritative rule collection for one
// (regulator, report type) pair over one effective window. Immutable
// once published. EffectiveTo == nil means open-ended.
type RuleSet struct {
	ID            string          `json:"id"`
	Regulator     string          `json:"regulator"`
	ReportType    string          `json:"report_type"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	Schema        CanonicalSchema `json:"schema"`
	Rules         []*Rule         `json:"rules"`
}

// Key identifies the (regulator, report type) pair a rule set belongs to.
func (rs *RuleSet) Key() string {
	return rs.Regulator + "/" + rs.ReportType
}

// Covers reports whether asOf falls inside the effective window.
// The window is [EffectiveFrom, EffectiveTo).
func (rs *RuleSet) Covers(asOf time.Time) bool {
	if asOf.Before(rs.EffectiveFrom) {
		return false
	}
	if rs.EffectiveTo == nil {
		return true
	}
	return asOf.Before(*rs.EffectiveTo)
}

// Overlaps reports whether two effective windows intersect.
func (rs *RuleSet) Overlaps(other *RuleSet) bool {
	// rs ends before other starts?
	if rs.EffectiveTo != nil && !other.EffectiveFrom.Before(*rs.EffectiveTo) {
		return false
	}
	// other ends before rs starts?
	if other.EffectiveTo != nil && !rs.EffectiveFrom.Before(*other.EffectiveTo) {
		return false
	}
	return true
}

// Validate checks the rule set for structural problems: missing
// identity, an inverted window, malformed rules, or rules targeting
// fields the schema does not declare as either canonical or derived.
func (rs *RuleSet) Validate() error {
	if rs.ID == "" {
		return fmt.Errorf("rule set has no id")
	}
	if rs.Regulator == "" || rs.ReportType == "" {
		return fmt.Errorf("rule set %s: regulator and report type are required", rs.ID)
	}
	if rs.EffectiveFrom.IsZero() {
		return fmt.Errorf("rule set %s: effective_from is required", rs.ID)
	}
	if rs.EffectiveTo != nil && !rs.EffectiveFrom.Before(*rs.EffectiveTo) {
		return fmt.Errorf("rule set %s: effective window is inverted", rs.ID)
	}
	for id, f := range rs.Schema {
		if f.ID != "" && f.ID != id {
			return fmt.Errorf("rule set %s: schema key %q does not match field id %q", rs.ID, id, f.ID)
		}
		switch f.Type {
		case "string", "int", "decimal", "date", "bool", "enum":
		default:
			return fmt.Errorf("rule set %s: field %s has unknown type %q", rs.ID, id, f.Type)
		}
		if f.Type == "enum" && len(f.Enum) == 0 {
			return fmt.Errorf("rule set %s: enum field %s declares no values", rs.ID, id)
		}
	}
	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule set %s: %w", rs.ID, err)
		}
		if seen[r.VersionID()] {
			return fmt.Errorf("rule set %s: duplicate rule %s", rs.ID, r.VersionID())
		}
		seen[r.VersionID()] = true
	}
	return nil
}

// RulesOfKind returns the rules of one kind in declared order.
func (rs *RuleSet) RulesOfKind(kind string) []*Rule {
	var out []*Rule
	for _, r := range rs.Rules {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
