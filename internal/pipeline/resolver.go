package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"compliance-core/internal/fixed"
	"compliance-core/internal/ruleset"
)

// DateLayout is the canonical wire format for date fields.
const DateLayout = "2006-01-02"

// Resolver maps raw records onto a canonical schema: exact raw name
// first, then the alias list, then a derivation expression over the
// raw fields. Compiled derivations are cached across records.
type Resolver struct {
	mu    sync.Mutex
	progs map[string]*vm.Program
}

func NewResolver() *Resolver {
	return &Resolver{progs: make(map[string]*vm.Program)}
}

// Resolve produces a ResolvedRecord for one raw record. It never
// aborts: a missing field is recorded as unresolved and a coercion
// failure becomes a blocking verdict, so the evaluator can report
// every problem in a single pass.
func (rv *Resolver) Resolve(recordIdx int, rec DataRecord, schema ruleset.CanonicalSchema) (*ResolvedRecord, []Verdict) {
	rr := NewResolvedRecord()
	var verdicts []Verdict

	ids := schema.FieldIDs()
	sort.Strings(ids)

	for _, id := range ids {
		spec := schema[id]
		spec.ID = id

		raw, found := rv.lookupRaw(rec, spec)
		if !found {
			rr.MarkUnresolved(id)
			continue
		}

		val, err := Coerce(raw, spec)
		if err != nil {
			rr.MarkUnresolved(id)
			verdicts = append(verdicts, Verdict{
				Record:      recordIdx,
				Field:       id,
				RuleVersion: CheckCoercion,
				Outcome:     OutcomeFail,
				Severity:    ruleset.SeverityBlocking,
				Message:     err.Error(),
			})
			continue
		}
		rr.Set(id, val)
	}
	return rr, verdicts
}

// lookupRaw finds the raw value for a field spec: exact name, aliases,
// then derivation.
func (rv *Resolver) lookupRaw(rec DataRecord, spec ruleset.FieldSpec) (any, bool) {
	if spec.Source.Raw != "" {
		if v, ok := rec[spec.Source.Raw]; ok && v != nil {
			return v, true
		}
	}
	for _, alias := range spec.Source.Aliases {
		if v, ok := rec[alias]; ok && v != nil {
			return v, true
		}
	}
	if spec.IsDerived() {
		if v, ok := rv.derive(rec, spec.Source.Derivation); ok {
			return v, true
		}
	}
	return nil, false
}

// derive evaluates a derivation expression over the raw fields. A
// derivation that fails leaves the field unresolved rather than
// aborting resolution.
func (rv *Resolver) derive(rec DataRecord, expression string) (any, bool) {
	rv.mu.Lock()
	prog, ok := rv.progs[expression]
	rv.mu.Unlock()

	if !ok {
		compiled, err := expr.Compile(expression)
		if err != nil {
			return nil, false
		}
		rv.mu.Lock()
		rv.progs[expression] = compiled
		rv.mu.Unlock()
		prog = compiled
	}

	out, err := expr.Run(prog, map[string]any(rec))
	if err != nil || out == nil {
		return nil, false
	}
	return out, true
}

// Coerce converts a raw value to the field's declared type. The error
// message is caller-facing; it ends up verbatim in a blocking verdict.
func Coerce(raw any, spec ruleset.FieldSpec) (any, error) {
	switch spec.Type {
	case "string":
		return coerceString(raw, spec)
	case "int":
		return coerceInt(raw, spec)
	case "decimal":
		return coerceDecimal(raw, spec)
	case "date":
		return coerceDate(raw, spec)
	case "bool":
		return coerceBool(raw, spec)
	case "enum":
		return coerceEnum(raw, spec)
	default:
		return nil, fmt.Errorf("field %s: unknown type %q", spec.ID, spec.Type)
	}
}

func coerceString(raw any, spec ruleset.FieldSpec) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("field %s: cannot coerce %T to string", spec.ID, raw)
}

func coerceInt(raw any, spec ruleset.FieldSpec) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("field %s: %v is not an integer", spec.ID, v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not an integer", spec.ID, v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("field %s: cannot coerce %T to int", spec.ID, raw)
}

func coerceDecimal(raw any, spec ruleset.FieldSpec) (any, error) {
	switch v := raw.(type) {
	case fixed.Decimal:
		return v, nil
	case string:
		d, err := fixed.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not numeric", spec.ID, v)
		}
		return d, nil
	case int:
		return fixed.FromInt(int64(v)), nil
	case int64:
		return fixed.FromInt(v), nil
	case float64:
		d, err := fixed.Parse(strconv.FormatFloat(v, 'f', -1, 64))
		if err != nil {
			return nil, fmt.Errorf("field %s: %v is not numeric", spec.ID, v)
		}
		return d, nil
	}
	return nil, fmt.Errorf("field %s: cannot coerce %T to decimal", spec.ID, raw)
}

func coerceDate(raw any, spec ruleset.FieldSpec) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Truncate(24 * time.Hour), nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
		return nil, fmt.Errorf("field %s: %q is not a date (want %s)", spec.ID, v, DateLayout)
	}
	return nil, fmt.Errorf("field %s: cannot coerce %T to date", spec.ID, raw)
}

func coerceBool(raw any, spec ruleset.FieldSpec) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a boolean", spec.ID, v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("field %s: cannot coerce %T to bool", spec.ID, raw)
}

func coerceEnum(raw any, spec ruleset.FieldSpec) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("field %s: cannot coerce %T to enum", spec.ID, raw)
	}
	if !spec.InEnum(s) {
		return nil, fmt.Errorf("field %s: %q is not one of %v", spec.ID, s, spec.Enum)
	}
	return s, nil
}
