package compiler

import (
	"encoding/xml"
	"fmt"

	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

// XMLRenderer emits generic structured markup: one Record element per
// record, one Field element per resolved canonical field, in canonical
// field order.
type XMLRenderer struct{}

type xmlField struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type xmlRecord struct {
	Index  int        `xml:"index,attr"`
	Fields []xmlField `xml:"Field"`
}

type xmlReport struct {
	XMLName xml.Name    `xml:"Report"`
	Records []xmlRecord `xml:"Record"`
}

func (XMLRenderer) Encoding() string { return "xml" }

func (XMLRenderer) Supports(fieldType string) bool {
	switch fieldType {
	case "string", "int", "decimal", "date", "bool", "enum":
		return true
	}
	return false
}

func (r XMLRenderer) Render(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) ([]byte, error) {
	if err := checkSupport(r, schema); err != nil {
		return nil, err
	}
	ids := renderFields(schema)

	doc := xmlReport{Records: make([]xmlRecord, len(records))}
	for i, rec := range records {
		xr := xmlRecord{Index: i}
		for _, id := range ids {
			if val, ok := rec.Fields[id]; ok {
				xr.Fields = append(xr.Fields, xmlField{ID: id, Value: formatValue(val)})
			}
		}
		doc.Records[i] = xr
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render xml: %w", err)
	}
	out := append([]byte(xml.Header), body...)
	return append(out, '\n'), nil
}

func (r XMLRenderer) Decode(data []byte, schema ruleset.CanonicalSchema) ([]map[string]any, error) {
	var doc xmlReport
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	out := make([]map[string]any, 0, len(doc.Records))
	for _, xr := range doc.Records {
		rec := make(map[string]any, len(xr.Fields))
		for _, f := range xr.Fields {
			spec, ok := schema[f.ID]
			if !ok {
				continue
			}
			spec.ID = f.ID
			val, err := pipeline.Coerce(f.Value, spec)
			if err != nil {
				return nil, fmt.Errorf("decode xml: %w", err)
			}
			rec[f.ID] = val
		}
		out = append(out, rec)
	}
	return out, nil
}
