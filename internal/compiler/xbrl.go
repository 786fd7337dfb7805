package compiler

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

const (
	xbrlInstanceNS = "http://www.xbrl.org/2003/instance"
	xbrlItemNS     = "http://compliance-core.dev/xbrl/items"
	xbrlUnitID     = "u1"
)

// XBRLRenderer emits a tagged-hierarchical instance document: one
// context per record, a single monetary unit, and one fact element per
// resolved field. Numeric facts carry unitRef and a decimals attribute
// from the field's declared precision; everything in the document is
// derived from the records and schema alone, so identical inputs give
// identical bytes.
type XBRLRenderer struct{}

func (XBRLRenderer) Encoding() string { return "xbrl" }

// Supports excludes bool: the instance format declares numeric, date,
// enumerated, and string facts only.
func (XBRLRenderer) Supports(fieldType string) bool {
	switch fieldType {
	case "string", "int", "decimal", "date", "enum":
		return true
	}
	return false
}

func (r XBRLRenderer) Render(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) ([]byte, error) {
	if err := checkSupport(r, schema); err != nil {
		return nil, err
	}
	ids := renderFields(schema)

	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<xbrl xmlns="` + xbrlInstanceNS + `"` + "\n")
	b.WriteString(`      xmlns:iso4217="http://www.xbrl.org/2003/iso4217"` + "\n")
	b.WriteString(`      xmlns:item="` + xbrlItemNS + `">` + "\n")

	for i, rec := range records {
		identifier := "0000000000"
		if v, ok := rec.Fields["entityId"]; ok {
			identifier = formatValue(v)
		}
		b.WriteString(fmt.Sprintf("  <context id=\"c%d\">\n", i))
		b.WriteString("    <entity>\n")
		b.WriteString("      <identifier scheme=\"http://www.sec.gov/CIK\">")
		xmlEscape(&b, identifier)
		b.WriteString("</identifier>\n")
		b.WriteString("    </entity>\n")
		b.WriteString("  </context>\n")
	}

	b.WriteString("  <unit id=\"" + xbrlUnitID + "\">\n")
	b.WriteString("    <measure>iso4217:USD</measure>\n")
	b.WriteString("  </unit>\n")

	for i, rec := range records {
		for _, id := range ids {
			val, ok := rec.Fields[id]
			if !ok {
				continue
			}
			spec := schema[id]
			if isNumericType(spec.Type) {
				decimals := 0
				if spec.Type == "decimal" {
					decimals = spec.Precision
				}
				b.WriteString(fmt.Sprintf("  <item:%s contextRef=\"c%d\" unitRef=\"%s\" decimals=\"%d\">",
					id, i, xbrlUnitID, decimals))
			} else {
				b.WriteString(fmt.Sprintf("  <item:%s contextRef=\"c%d\">", id, i))
			}
			xmlEscape(&b, formatValue(val))
			b.WriteString(fmt.Sprintf("</item:%s>\n", id))
		}
	}

	b.WriteString("</xbrl>\n")
	return b.Bytes(), nil
}

func (r XBRLRenderer) Decode(data []byte, schema ruleset.CanonicalSchema) ([]map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	recordCount := 0
	facts := make(map[int]map[string]any)

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch {
		case start.Name.Space == xbrlInstanceNS && start.Name.Local == "context":
			recordCount++
			dec.Skip()

		case start.Name.Space == xbrlItemNS:
			id := start.Name.Local
			ctxRef := ""
			for _, attr := range start.Attr {
				if attr.Name.Local == "contextRef" {
					ctxRef = attr.Value
				}
			}
			idx, err := strconv.Atoi(strings.TrimPrefix(ctxRef, "c"))
			if err != nil {
				return nil, fmt.Errorf("decode xbrl: fact %s has bad contextRef %q", id, ctxRef)
			}

			var text string
			if err := dec.DecodeElement(&text, &start); err != nil {
				return nil, fmt.Errorf("decode xbrl: fact %s: %w", id, err)
			}

			spec, known := schema[id]
			if !known {
				continue
			}
			spec.ID = id
			val, err := pipeline.Coerce(text, spec)
			if err != nil {
				return nil, fmt.Errorf("decode xbrl: %w", err)
			}
			if facts[idx] == nil {
				facts[idx] = make(map[string]any)
			}
			facts[idx][id] = val
		}
	}

	out := make([]map[string]any, recordCount)
	for i := range out {
		if facts[i] != nil {
			out[i] = facts[i]
		} else {
			out[i] = map[string]any{}
		}
	}
	return out, nil
}

func xmlEscape(b *bytes.Buffer, s string) {
	// EscapeText cannot fail writing to a bytes.Buffer.
	xml.EscapeText(b, []byte(s))
}
