package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"compliance-core/internal/fixed"
	"compliance-core/internal/ruleset"
)

// Evaluator runs a rule set's rules against resolved records. Rules
// execute in the rule set's declared order: transformations and
// calculations may produce fields consumed by later rules in the same
// pass, and that order is a published property of the rule set, never
// inferred here.
type Evaluator struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
	progs    map[progKey]*vm.Program
}

// progKey identifies a compiled program: predicates compile with a
// bool result constraint, so the same expression text can yield two
// distinct programs.
type progKey struct {
	expr   string
	asBool bool
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		patterns: make(map[string]*regexp.Regexp),
		progs:    make(map[progKey]*vm.Program),
	}
}

// Evaluate produces every verdict for one resolved record. Per-field
// problems are verdicts, not errors; the returned error is reserved
// for structural failures (a rule whose expression will not compile),
// which abort the run.
func (ev *Evaluator) Evaluate(recordIdx int, rr *ResolvedRecord, rs *ruleset.RuleSet, lin *Lineage) ([]Verdict, error) {
	verdicts := ev.schemaChecks(recordIdx, rr, rs.Schema)

	for _, rule := range rs.Rules {
		switch rule.Kind {
		case ruleset.KindValidation:
			v, err := ev.runValidation(recordIdx, rr, rule)
			if err != nil {
				return nil, err
			}
			if v != nil {
				verdicts = append(verdicts, *v)
			}
		case ruleset.KindCalculation:
			v, err := ev.runCalculation(recordIdx, rr, rs.Schema, rule, lin)
			if err != nil {
				return nil, err
			}
			verdicts = append(verdicts, v)
		case ruleset.KindTransformation:
			v, err := ev.runTransformation(recordIdx, rr, rs.Schema, rule, lin)
			if err != nil {
				return nil, err
			}
			verdicts = append(verdicts, v)
		}
	}
	return verdicts, nil
}

// schemaChecks covers the canonical schema's own contract: required
// fields must resolve, and resolved values must sit inside the
// declared value domain. Findings are blocking verdicts.
func (ev *Evaluator) schemaChecks(recordIdx int, rr *ResolvedRecord, schema ruleset.CanonicalSchema) []Verdict {
	var verdicts []Verdict

	ids := schema.FieldIDs()
	sort.Strings(ids)

	for _, id := range ids {
		spec := schema[id]
		spec.ID = id

		if spec.Required && !rr.Has(id) {
			verdicts = append(verdicts, Verdict{
				Record:      recordIdx,
				Field:       id,
				RuleVersion: CheckRequired,
				Outcome:     OutcomeFail,
				Severity:    ruleset.SeverityBlocking,
				Message:     fmt.Sprintf("required field %s is missing", id),
			})
			continue
		}
		if !rr.Has(id) {
			continue
		}

		if msg := ev.domainViolation(rr.Fields[id], spec); msg != "" {
			verdicts = append(verdicts, Verdict{
				Record:      recordIdx,
				Field:       id,
				RuleVersion: CheckDomain,
				Outcome:     OutcomeFail,
				Severity:    ruleset.SeverityBlocking,
				Message:     msg,
			})
		}
	}
	return verdicts
}

func (ev *Evaluator) domainViolation(val any, spec ruleset.FieldSpec) string {
	if spec.Min != nil || spec.Max != nil {
		var n float64
		switch v := val.(type) {
		case int64:
			n = float64(v)
		case fixed.Decimal:
			n = v.Float64()
		default:
			return ""
		}
		if spec.Min != nil && n < *spec.Min {
			return fmt.Sprintf("field %s: %v is below minimum %v", spec.ID, val, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return fmt.Sprintf("field %s: %v is above maximum %v", spec.ID, val, *spec.Max)
		}
	}

	if spec.Pattern != "" {
		s, ok := val.(string)
		if !ok {
			return ""
		}
		re, err := ev.pattern(spec.Pattern)
		if err != nil {
			return fmt.Sprintf("field %s: invalid pattern %q", spec.ID, spec.Pattern)
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("field %s: %q does not match %s", spec.ID, s, spec.Pattern)
		}
	}
	return ""
}

func (ev *Evaluator) pattern(p string) (*regexp.Regexp, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if re, ok := ev.patterns[p]; ok {
		return re, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	ev.patterns[p] = re
	return re, nil
}

// runValidation evaluates a predicate rule. A rule whose target fields
// are unresolved is skipped: missing-field findings belong to the
// required check, not to every predicate that mentions the field.
func (ev *Evaluator) runValidation(recordIdx int, rr *ResolvedRecord, rule *ruleset.Rule) (*Verdict, error) {
	for _, target := range rule.Targets {
		if !rr.Has(target) {
			return nil, nil
		}
	}
	for _, input := range rule.Inputs {
		if !rr.Has(input) {
			return nil, nil
		}
	}

	prog, err := ev.compile(rule, true)
	if err != nil {
		return nil, err
	}

	out, err := expr.Run(prog, ev.env(rr))
	if err != nil {
		return &Verdict{
			Record:      recordIdx,
			Field:       rule.Target(),
			RuleVersion: rule.VersionID(),
			Outcome:     OutcomeFail,
			Severity:    ruleset.SeverityBlocking,
			Message:     fmt.Sprintf("rule evaluation failed: %v", err),
		}, nil
	}

	ok, _ := out.(bool)
	v := Verdict{
		Record:      recordIdx,
		Field:       rule.Target(),
		RuleVersion: rule.VersionID(),
		Severity:    rule.Severity,
	}
	if ok {
		v.Outcome = OutcomePass
	} else {
		if rule.Severity == ruleset.SeverityBlocking {
			v.Outcome = OutcomeFail
		} else {
			v.Outcome = OutcomeWarn
		}
		v.Message = rule.Description
		if v.Message == "" {
			v.Message = fmt.Sprintf("rule %s failed", rule.VersionID())
		}
	}
	return &v, nil
}

// runCalculation evaluates a formula and stores the derived field. A
// formula referencing a missing dependency is a blocking failure and
// the derived field stays unresolved.
func (ev *Evaluator) runCalculation(recordIdx int, rr *ResolvedRecord, schema ruleset.CanonicalSchema, rule *ruleset.Rule, lin *Lineage) (Verdict, error) {
	target := rule.Target()

	fail := func(msg string) Verdict {
		rr.MarkUnresolved(target)
		return Verdict{
			Record:      recordIdx,
			Field:       target,
			RuleVersion: rule.VersionID(),
			Outcome:     OutcomeFail,
			Severity:    ruleset.SeverityBlocking,
			Message:     msg,
		}
	}

	for _, input := range rule.Inputs {
		if !rr.Has(input) {
			return fail(fmt.Sprintf("calculation depends on missing field %s", input)), nil
		}
	}

	prog, err := ev.compile(rule, false)
	if err != nil {
		return Verdict{}, err
	}

	out, err := expr.Run(prog, ev.env(rr))
	if err != nil {
		return fail(fmt.Sprintf("calculation failed: %v", err)), nil
	}

	val, err := ev.coerceResult(out, target, schema)
	if err != nil {
		return fail(err.Error()), nil
	}

	rr.Set(target, val)
	lin.Record(recordIdx, target, rule.Inputs, rule.VersionID())
	return Verdict{
		Record:      recordIdx,
		Field:       target,
		RuleVersion: rule.VersionID(),
		Outcome:     OutcomePass,
		Severity:    rule.Severity,
	}, nil
}

// runTransformation rewrites a field in place. Transformation never
// fails the record: unmappable input degrades to a warn verdict and
// the original value stays.
func (ev *Evaluator) runTransformation(recordIdx int, rr *ResolvedRecord, schema ruleset.CanonicalSchema, rule *ruleset.Rule, lin *Lineage) (Verdict, error) {
	target := rule.Target()

	warn := func(msg string) Verdict {
		return Verdict{
			Record:      recordIdx,
			Field:       target,
			RuleVersion: rule.VersionID(),
			Outcome:     OutcomeWarn,
			Severity:    rule.Severity,
			Message:     msg,
		}
	}

	if !rr.Has(target) {
		return warn(fmt.Sprintf("transformation target %s is unresolved; original value kept", target)), nil
	}
	for _, input := range rule.Inputs {
		if !rr.Has(input) {
			return warn(fmt.Sprintf("transformation input %s is unresolved; original value kept", input)), nil
		}
	}

	prog, err := ev.compile(rule, false)
	if err != nil {
		return Verdict{}, err
	}

	out, err := expr.Run(prog, ev.env(rr))
	if err != nil {
		return warn(fmt.Sprintf("unmappable input: %v; original value kept", err)), nil
	}

	val, err := ev.coerceResult(out, target, schema)
	if err != nil {
		return warn(fmt.Sprintf("unmappable input: %v; original value kept", err)), nil
	}

	sources := rule.Inputs
	if len(sources) == 0 {
		sources = []string{target}
	}
	rr.Set(target, val)
	lin.Record(recordIdx, target, sources, rule.VersionID())
	return Verdict{
		Record:      recordIdx,
		Field:       target,
		RuleVersion: rule.VersionID(),
		Outcome:     OutcomePass,
		Severity:    rule.Severity,
	}, nil
}

// coerceResult types an expression result for its target field. Fields
// the schema does not declare keep the raw result (derived-only
// intermediate fields are legal).
func (ev *Evaluator) coerceResult(out any, target string, schema ruleset.CanonicalSchema) (any, error) {
	spec, ok := schema[target]
	if !ok {
		return out, nil
	}
	spec.ID = target
	return Coerce(out, spec)
}

// env builds the expression environment for one record. Field values
// appear under their canonical ids (decimals as float64 for predicate
// arithmetic), and precision-sensitive helpers reach back to the exact
// decimal by field name so no money value ever rides through a float.
func (ev *Evaluator) env(rr *ResolvedRecord) map[string]any {
	env := make(map[string]any, len(rr.Fields)+5)
	for id, val := range rr.Fields {
		if d, ok := val.(fixed.Decimal); ok {
			env[id] = d.Float64()
		} else {
			env[id] = val
		}
	}
	env["fields"] = env

	// has(field): whether the field resolved.
	env["has"] = func(field string) bool {
		return rr.Has(field)
	}

	// round(field, places): half-up rounding of the field's exact
	// decimal value. Returns fixed.Decimal so trailing zeros survive.
	env["round"] = func(field string, places int) (any, error) {
		val, ok := rr.Fields[field]
		if !ok {
			return nil, fmt.Errorf("round: field %s is unresolved", field)
		}
		d, err := asDecimal(val)
		if err != nil {
			return nil, fmt.Errorf("round: field %s: %w", field, err)
		}
		return d.Round(places), nil
	}

	// decimal(s): exact decimal from a literal string.
	env["decimal"] = func(s string) (any, error) {
		d, err := fixed.Parse(s)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	// mapcode(field, table): code-list mapping; unmapped input is an
	// error, which transformations degrade to a warn verdict.
	env["mapcode"] = func(field string, table map[string]any) (any, error) {
		val, ok := rr.Fields[field]
		if !ok {
			return nil, fmt.Errorf("mapcode: field %s is unresolved", field)
		}
		key := fmt.Sprintf("%v", val)
		mapped, ok := table[key]
		if !ok {
			return nil, fmt.Errorf("mapcode: no mapping for %q", key)
		}
		return mapped, nil
	}

	// days_between(a, b): whole days from date field a to date field b.
	env["days_between"] = func(a, b string) (int, error) {
		ta, ok1 := rr.Fields[a].(time.Time)
		tb, ok2 := rr.Fields[b].(time.Time)
		if !ok1 || !ok2 {
			return 0, fmt.Errorf("days_between: %s and %s must be resolved dates", a, b)
		}
		return int(tb.Sub(ta).Hours() / 24), nil
	}

	return env
}

func asDecimal(val any) (fixed.Decimal, error) {
	switch v := val.(type) {
	case fixed.Decimal:
		return v, nil
	case int64:
		return fixed.FromInt(v), nil
	case string:
		return fixed.Parse(v)
	}
	return fixed.Decimal{}, fmt.Errorf("%T is not numeric", val)
}

// Precompile compiles every rule expression in the set up front,
// warming the program cache and surfacing malformed rules as a hard
// failure before any record is touched.
func (ev *Evaluator) Precompile(rs *ruleset.RuleSet) error {
	for _, rule := range rs.Rules {
		if _, err := ev.compile(rule, rule.Kind == ruleset.KindValidation); err != nil {
			return err
		}
	}
	return nil
}

// compile returns the program for a rule's expression, compiling on
// first use. Programs are cached on the evaluator, never on the rule:
// a published rule set is read-only and shared across concurrent runs.
// A compile failure is structural and aborts the run.
func (ev *Evaluator) compile(rule *ruleset.Rule, asBool bool) (*vm.Program, error) {
	key := progKey{expr: rule.Expression, asBool: asBool}

	ev.mu.Lock()
	prog, ok := ev.progs[key]
	ev.mu.Unlock()
	if ok {
		return prog, nil
	}

	var opts []expr.Option
	if asBool {
		opts = append(opts, expr.AsBool())
	}
	prog, err := expr.Compile(rule.Expression, opts...)
	if err != nil {
		return nil, fmt.Errorf("rule %s: compile expression: %w", rule.VersionID(), err)
	}

	ev.mu.Lock()
	ev.progs[key] = prog
	ev.mu.Unlock()
	return prog, nil
}
