package pipeline

import (
	"sort"

	"compliance-core/internal/ruleset"
)

// Verdict outcomes.
const (
	OutcomePass = "pass"
	OutcomeFail = "fail"
	OutcomeWarn = "warn"
)

// Built-in check identifiers. Schema-level findings (required fields,
// type coercion, value domains) are verdicts like any rule finding, so
// one run surfaces every defect at once instead of throwing on the
// first.
const (
	CheckRequired = "schema/required"
	CheckCoercion = "schema/type"
	CheckDomain   = "schema/domain"
)

// Verdict is one rule's finding for one canonical field. A field
// accumulates one verdict per rule that touched it; nothing is
// overwritten.
type Verdict struct {
	Record      int    `json:"record"`
	Field       string `json:"field"`
	RuleVersion string `json:"rule"`
	Outcome     string `json:"outcome"`
	Severity    string `json:"severity"`
	Message     string `json:"message,omitempty"`
}

// ValidationResult aggregates every verdict of a report run. Blocked
// means compilation must refuse to proceed.
type ValidationResult struct {
	PassCount        int       `json:"pass_count"`
	FailCount        int       `json:"fail_count"`
	WarnCount        int       `json:"warn_count"`
	Blocked          bool      `json:"blocked"`
	BlockingFailures []Verdict `json:"blocking_failures,omitempty"`
	Warnings         []Verdict `json:"warnings,omitempty"`
}

// Aggregate reduces a verdict set to a ValidationResult. Pure and
// order-independent: the lists are sorted canonically, so any
// permutation of the input (records evaluate in parallel) yields an
// identical result.
func Aggregate(verdicts []Verdict) ValidationResult {
	var res ValidationResult
	for _, v := range verdicts {
		switch v.Outcome {
		case OutcomePass:
			res.PassCount++
		case OutcomeFail:
			res.FailCount++
		case OutcomeWarn:
			res.WarnCount++
		}
		if v.Outcome == OutcomeFail && v.Severity == ruleset.SeverityBlocking {
			res.BlockingFailures = append(res.BlockingFailures, v)
		}
		if v.Outcome == OutcomeWarn {
			res.Warnings = append(res.Warnings, v)
		}
	}
	res.Blocked = len(res.BlockingFailures) > 0
	sortVerdicts(res.BlockingFailures)
	sortVerdicts(res.Warnings)
	return res
}

func sortVerdicts(vs []Verdict) {
	sort.Slice(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Record != b.Record {
			return a.Record < b.Record
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.RuleVersion != b.RuleVersion {
			return a.RuleVersion < b.RuleVersion
		}
		return a.Message < b.Message
	})
}
