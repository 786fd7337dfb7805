package compiler

import (
	"bytes"
	"fmt"
	"html"

	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

// HTMLRenderer emits a human-readable table for review workflows. It
// is render-only: HTML is not a data interchange format, so Decode
// always refuses.
type HTMLRenderer struct{}

func (HTMLRenderer) Encoding() string { return "html" }

func (HTMLRenderer) Supports(fieldType string) bool {
	switch fieldType {
	case "string", "int", "decimal", "date", "bool", "enum":
		return true
	}
	return false
}

func (r HTMLRenderer) Render(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) ([]byte, error) {
	if err := checkSupport(r, schema); err != nil {
		return nil, err
	}
	ids := renderFields(schema)

	var b bytes.Buffer
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("  <title>Compiled Report</title>\n")
	b.WriteString("  <style>table{border-collapse:collapse}th,td{border:1px solid #ddd;padding:6px 10px;text-align:left}th{background:#f2f2f2}</style>\n")
	b.WriteString("</head>\n<body>\n  <table>\n    <tr>")
	for _, id := range ids {
		b.WriteString("<th>" + html.EscapeString(id) + "</th>")
	}
	b.WriteString("</tr>\n")
	for _, rec := range records {
		b.WriteString("    <tr>")
		for _, id := range ids {
			cell := ""
			if val, ok := rec.Fields[id]; ok {
				cell = html.EscapeString(formatValue(val))
			}
			b.WriteString("<td>" + cell + "</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("  </table>\n</body>\n</html>\n")
	return b.Bytes(), nil
}

func (r HTMLRenderer) Decode(data []byte, schema ruleset.CanonicalSchema) ([]map[string]any, error) {
	return nil, fmt.Errorf("html: %w", pipeline.NewAppError(
		"ENCODING_UNSUPPORTED_TYPE", 422, "html artifacts cannot be decoded"))
}
