// Package compiler renders validated, transformed records into a
// canonical output encoding. Compilation is deterministic: canonical
// field order is sorted field id, no wall-clock data enters the
// artifact, and two compilations from identical inputs and rule set
// version produce byte-identical output.
package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"compliance-core/internal/fixed"
	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

// Renderer is the capability each target encoding implements. Render
// and Decode must round-trip: a value rendered and parsed back by the
// same encoding equals the original within the encoding's declared
// precision.
type Renderer interface {
	Encoding() string
	Supports(fieldType string) bool
	Render(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) ([]byte, error)
	Decode(data []byte, schema ruleset.CanonicalSchema) ([]map[string]any, error)
}

// renderFields returns the canonical field ids present in the schema,
// sorted. Every renderer iterates fields in exactly this order.
func renderFields(schema ruleset.CanonicalSchema) []string {
	ids := schema.FieldIDs()
	sort.Strings(ids)
	return ids
}

// formatValue renders a typed value as its canonical string form.
// Decimals keep their exact digits (fixed-point, never float), dates
// use the canonical date layout.
func formatValue(val any) string {
	switch v := val.(type) {
	case fixed.Decimal:
		return v.String()
	case time.Time:
		return v.Format(pipeline.DateLayout)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// checkSupport verifies the renderer can represent every schema field
// type before any bytes are produced, so an unsupported type fails the
// render attempt cleanly instead of corrupting partial output.
func checkSupport(r Renderer, schema ruleset.CanonicalSchema) error {
	for _, id := range renderFields(schema) {
		spec := schema[id]
		if !r.Supports(spec.Type) {
			return pipeline.EncodingUnsupportedTypeError(r.Encoding(), id, spec.Type)
		}
	}
	return nil
}

func isNumericType(fieldType string) bool {
	return fieldType == "int" || fieldType == "decimal"
}
