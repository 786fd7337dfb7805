package compiler

import (
	"encoding/json"
	"fmt"

	"compliance-core/internal/fixed"
	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

// JSONRenderer emits a record-oriented structured document. Decimal
// and date values are encoded as strings so that precision survives
// the trip: a JSON number would push monetary values through float64.
// encoding/json sorts map keys, which gives the canonical field order
// for free.
type JSONRenderer struct{}

func (JSONRenderer) Encoding() string { return "json" }

func (JSONRenderer) Supports(fieldType string) bool {
	switch fieldType {
	case "string", "int", "decimal", "date", "bool", "enum":
		return true
	}
	return false
}

func (r JSONRenderer) Render(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) ([]byte, error) {
	if err := checkSupport(r, schema); err != nil {
		return nil, err
	}
	ids := renderFields(schema)

	out := make([]map[string]any, len(records))
	for i, rec := range records {
		m := make(map[string]any, len(ids))
		for _, id := range ids {
			val, ok := rec.Fields[id]
			if !ok {
				continue
			}
			switch v := val.(type) {
			case int64:
				m[id] = v
			case bool:
				m[id] = v
			case fixed.Decimal:
				m[id] = v.String()
			default:
				m[id] = formatValue(val)
			}
		}
		out[i] = m
	}

	data, err := json.MarshalIndent(map[string]any{"records": out}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return append(data, '\n'), nil
}

func (r JSONRenderer) Decode(data []byte, schema ruleset.CanonicalSchema) ([]map[string]any, error) {
	var doc struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	out := make([]map[string]any, 0, len(doc.Records))
	for _, raw := range doc.Records {
		rec := make(map[string]any, len(raw))
		for id, v := range raw {
			spec, ok := schema[id]
			if !ok {
				continue
			}
			spec.ID = id
			val, err := pipeline.Coerce(v, spec)
			if err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			rec[id] = val
		}
		out = append(out, rec)
	}
	return out, nil
}
