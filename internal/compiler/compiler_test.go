package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

func reportRuleSet() *ruleset.RuleSet {
	return &ruleset.RuleSet{
		ID:        "rs-sec-10k-2024",
		Regulator: "SEC", ReportType: "10-K",
		Schema: ruleset.CanonicalSchema{
			"entityId": {
				Type: "string", Required: true,
				Source: ruleset.FieldSource{Raw: "entity_id"},
			},
			"amount": {
				Type: "decimal", Precision: 2, Required: true,
				Source: ruleset.FieldSource{Raw: "amount"},
			},
			"quantity": {
				Type:   "int",
				Source: ruleset.FieldSource{Raw: "qty"},
			},
			"tradeDate": {
				Type:   "date",
				Source: ruleset.FieldSource{Raw: "trade_date"},
			},
			"assetClass": {
				Type: "enum", Enum: []string{"equity", "bond"},
				Source: ruleset.FieldSource{Raw: "asset_class"},
			},
		},
	}
}

func executeRun(t *testing.T, rs *ruleset.RuleSet, records []pipeline.DataRecord) *pipeline.Run {
	t.Helper()
	run, err := pipeline.NewEngine(2).Execute(context.Background(), rs, records)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return run
}

func testRecords() []pipeline.DataRecord {
	return []pipeline.DataRecord{
		{"entity_id": "ENT-1", "amount": "150.25", "qty": 10, "trade_date": "2024-03-15", "asset_class": "bond"},
		{"entity_id": "ENT-2", "amount": "0.10", "qty": 3},
	}
}

func TestRenderersRoundTrip(t *testing.T) {
	rs := reportRuleSet()
	run := executeRun(t, rs, testRecords())

	for _, r := range []Renderer{CSVRenderer{}, JSONRenderer{}, XMLRenderer{}, XBRLRenderer{}} {
		data, err := r.Render(run.Resolved, rs.Schema)
		if err != nil {
			t.Fatalf("%s render: %v", r.Encoding(), err)
		}
		decoded, err := r.Decode(data, rs.Schema)
		if err != nil {
			t.Fatalf("%s decode: %v", r.Encoding(), err)
		}
		if len(decoded) != len(run.Resolved) {
			t.Fatalf("%s: decoded %d records, want %d", r.Encoding(), len(decoded), len(run.Resolved))
		}
		for i, rec := range run.Resolved {
			if len(decoded[i]) != len(rec.Fields) {
				t.Fatalf("%s record %d: got fields %v, want %v", r.Encoding(), i, decoded[i], rec.Fields)
			}
			for id, want := range rec.Fields {
				got, ok := decoded[i][id]
				if !ok {
					t.Fatalf("%s record %d: field %s missing after round trip", r.Encoding(), i, id)
				}
				if formatValue(got) != formatValue(want) {
					t.Fatalf("%s record %d field %s: %v != %v", r.Encoding(), i, id, got, want)
				}
			}
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	rs := reportRuleSet()
	run1 := executeRun(t, rs, testRecords())
	run2 := executeRun(t, rs, testRecords())

	for _, r := range []Renderer{CSVRenderer{}, JSONRenderer{}, XMLRenderer{}, XBRLRenderer{}, HTMLRenderer{}} {
		a, err := r.Render(run1.Resolved, rs.Schema)
		if err != nil {
			t.Fatalf("%s render: %v", r.Encoding(), err)
		}
		b, err := r.Render(run2.Resolved, rs.Schema)
		if err != nil {
			t.Fatalf("%s render: %v", r.Encoding(), err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: identical inputs rendered differently", r.Encoding())
		}
	}

	if Checksum(run1.Resolved, rs.Schema) != Checksum(run2.Resolved, rs.Schema) {
		t.Fatal("checksums differ for identical inputs")
	}
}

func TestChecksumIndependentOfEncoding(t *testing.T) {
	rs := reportRuleSet()
	comp := New()

	csvReport, err := comp.Compile(context.Background(), executeRun(t, rs, testRecords()), "rep-1", "csv")
	if err != nil {
		t.Fatalf("compile csv: %v", err)
	}
	jsonReport, err := comp.Compile(context.Background(), executeRun(t, rs, testRecords()), "rep-1", "json")
	if err != nil {
		t.Fatalf("compile json: %v", err)
	}

	if csvReport.Checksum != jsonReport.Checksum {
		t.Fatalf("checksum depends on encoding: %s vs %s", csvReport.Checksum, jsonReport.Checksum)
	}
	if bytes.Equal(csvReport.Artifact, jsonReport.Artifact) {
		t.Fatal("different encodings produced identical artifacts")
	}
}

func TestCompileBlockedRunRefused(t *testing.T) {
	rs := reportRuleSet()
	run := executeRun(t, rs, []pipeline.DataRecord{{"amount": "1"}})
	if run.State() != pipeline.StateBlocked {
		t.Fatalf("state = %s", run.State())
	}

	_, err := New().Compile(context.Background(), run, "rep-1", "csv")
	var appErr *pipeline.AppError
	if !errors.As(err, &appErr) || appErr.Code != "BLOCKED_BY_VALIDATION" {
		t.Fatalf("err = %v", err)
	}
	if len(appErr.Details) != 1 || appErr.Details[0].Field != "entityId" {
		t.Fatalf("details = %+v", appErr.Details)
	}
}

func TestCompileUnknownEncoding(t *testing.T) {
	rs := reportRuleSet()
	run := executeRun(t, rs, testRecords())

	_, err := New().Compile(context.Background(), run, "rep-1", "parquet")
	var appErr *pipeline.AppError
	if !errors.As(err, &appErr) || appErr.Code != "UNKNOWN_ENCODING" {
		t.Fatalf("err = %v", err)
	}
}

func TestCompileUnsupportedTypeLeavesRunRetryable(t *testing.T) {
	rs := reportRuleSet()
	rs.Schema["active"] = ruleset.FieldSpec{
		Type:   "bool",
		Source: ruleset.FieldSource{Raw: "active"},
	}
	records := testRecords()
	records[0]["active"] = true
	records[1]["active"] = false
	run := executeRun(t, rs, records)

	comp := New()
	_, err := comp.Compile(context.Background(), run, "rep-1", "xbrl")
	var appErr *pipeline.AppError
	if !errors.As(err, &appErr) || appErr.Code != "ENCODING_UNSUPPORTED_TYPE" {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(appErr.Message, "active") {
		t.Fatalf("message should name the field: %q", appErr.Message)
	}

	// The failed attempt must not consume the run: a supported encoding
	// still compiles.
	report, err := comp.Compile(context.Background(), run, "rep-1", "csv")
	if err != nil {
		t.Fatalf("compile csv after failed xbrl: %v", err)
	}
	if run.State() != pipeline.StateCompiled {
		t.Fatalf("state = %s", run.State())
	}
	if report.Encoding != "csv" || len(report.Artifact) == 0 {
		t.Fatalf("report = %+v", report)
	}
}

// brokenRenderer claims support for every field type but fails to
// render, standing in for encodings whose write path can fail.
type brokenRenderer struct{}

func (brokenRenderer) Encoding() string     { return "broken" }
func (brokenRenderer) Supports(string) bool { return true }
func (brokenRenderer) Render([]*pipeline.ResolvedRecord, ruleset.CanonicalSchema) ([]byte, error) {
	return nil, errors.New("write path failed")
}
func (brokenRenderer) Decode([]byte, ruleset.CanonicalSchema) ([]map[string]any, error) {
	return nil, errors.New("not decodable")
}

func TestCompileRenderFailureLeavesRunRetryable(t *testing.T) {
	rs := reportRuleSet()
	run := executeRun(t, rs, testRecords())

	comp := New()
	comp.renderers["broken"] = brokenRenderer{}

	if _, err := comp.Compile(context.Background(), run, "rep-1", "broken"); err == nil {
		t.Fatal("render failure must fail the compile attempt")
	}
	// A render failure never strands the run mid-compile: it stays in
	// Aggregating and another encoding still goes through.
	if run.State() != pipeline.StateAggregating {
		t.Fatalf("state = %s, want %s", run.State(), pipeline.StateAggregating)
	}

	report, err := comp.Compile(context.Background(), run, "rep-1", "csv")
	if err != nil {
		t.Fatalf("compile csv after failed render: %v", err)
	}
	if run.State() != pipeline.StateCompiled {
		t.Fatalf("state = %s", run.State())
	}
	if report.Encoding != "csv" || len(report.Artifact) == 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestCompileDelimitedRounding(t *testing.T) {
	rs := reportRuleSet()
	rs.Schema["roundedAmount"] = ruleset.FieldSpec{Type: "decimal", Precision: 2}
	rs.Rules = []*ruleset.Rule{
		{ID: "round-amount", Version: "1", Kind: ruleset.KindCalculation,
			Targets: []string{"roundedAmount"}, Inputs: []string{"amount"},
			Expression: `round("amount", 2)`, Severity: ruleset.SeverityBlocking},
	}
	run := executeRun(t, rs, []pipeline.DataRecord{
		{"entity_id": "ENT-1", "amount": "9999999.995"},
	})

	report, err := New().Compile(context.Background(), run, "rep-1", "csv")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(string(report.Artifact), "10000000.00") {
		t.Fatalf("artifact missing exact rounded value:\n%s", report.Artifact)
	}
	if strings.Contains(string(report.Artifact), "9999999.99,") {
		t.Fatalf("artifact carries a float-drifted value:\n%s", report.Artifact)
	}
}

func TestCompileAttachesLineageAndValidation(t *testing.T) {
	rs := reportRuleSet()
	rs.Schema["roundedAmount"] = ruleset.FieldSpec{Type: "decimal", Precision: 2}
	rs.Rules = []*ruleset.Rule{
		{ID: "round-amount", Version: "3", Kind: ruleset.KindCalculation,
			Targets: []string{"roundedAmount"}, Inputs: []string{"amount"},
			Expression: `round("amount", 2)`, Severity: ruleset.SeverityBlocking},
	}
	run := executeRun(t, rs, testRecords())

	report, err := New().Compile(context.Background(), run, "rep-7", "json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if report.ReportID != "rep-7" || report.RuleSetID != rs.ID {
		t.Fatalf("report identity: %+v", report)
	}
	if len(report.Lineage) != 2 {
		t.Fatalf("lineage = %+v", report.Lineage)
	}
	if report.Lineage[0].RuleVersion != "round-amount@3" {
		t.Fatalf("lineage rule = %s", report.Lineage[0].RuleVersion)
	}
	if report.Validation.PassCount == 0 {
		t.Fatalf("validation = %+v", report.Validation)
	}
}

func TestHTMLDecodeRefused(t *testing.T) {
	rs := reportRuleSet()
	run := executeRun(t, rs, testRecords())

	data, err := HTMLRenderer{}.Render(run.Resolved, rs.Schema)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(data), "<table>") {
		t.Fatalf("html output missing table:\n%s", data)
	}
	if _, err := (HTMLRenderer{}).Decode(data, rs.Schema); err == nil {
		t.Fatal("html decode must refuse")
	}
}

func TestXBRLFactAttributes(t *testing.T) {
	rs := reportRuleSet()
	run := executeRun(t, rs, testRecords())

	data, err := XBRLRenderer{}.Render(run.Resolved, rs.Schema)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(data)

	want := fmt.Sprintf(`<item:amount contextRef="c0" unitRef="%s" decimals="2">150.25</item:amount>`, xbrlUnitID)
	if !strings.Contains(doc, want) {
		t.Fatalf("missing monetary fact %q in:\n%s", want, doc)
	}
	// Non-numeric facts carry no unit.
	if !strings.Contains(doc, `<item:assetClass contextRef="c0">bond</item:assetClass>`) {
		t.Fatalf("missing enum fact in:\n%s", doc)
	}
	if !strings.Contains(doc, `<identifier scheme="http://www.sec.gov/CIK">ENT-1</identifier>`) {
		t.Fatalf("missing entity identifier in:\n%s", doc)
	}
}
