package compiler

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

// CSVRenderer emits a delimited flat file: header row of sorted
// canonical field ids, one data row per record. An unresolved field is
// an empty cell, distinguishable from an empty string only for
// non-string types (a flat delimited format has no better answer).
type CSVRenderer struct{}

func (CSVRenderer) Encoding() string { return "csv" }

func (CSVRenderer) Supports(fieldType string) bool {
	switch fieldType {
	case "string", "int", "decimal", "date", "bool", "enum":
		return true
	}
	return false
}

func (r CSVRenderer) Render(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) ([]byte, error) {
	if err := checkSupport(r, schema); err != nil {
		return nil, err
	}
	ids := renderFields(schema)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ids); err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(ids))
		for i, id := range ids {
			if val, ok := rec.Fields[id]; ok {
				row[i] = formatValue(val)
			}
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (r CSVRenderer) Decode(data []byte, schema ruleset.CanonicalSchema) ([]map[string]any, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("decode csv: missing header row")
	}

	header := rows[0]
	out := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, id := range header {
			if i >= len(row) || row[i] == "" {
				continue
			}
			spec, ok := schema[id]
			if !ok {
				continue
			}
			spec.ID = id
			val, err := pipeline.Coerce(row[i], spec)
			if err != nil {
				return nil, fmt.Errorf("decode csv: %w", err)
			}
			rec[id] = val
		}
		out = append(out, rec)
	}
	return out, nil
}
