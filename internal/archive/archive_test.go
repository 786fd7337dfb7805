package archive

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"compliance-core/internal/compiler"
	"compliance-core/internal/config"
	"compliance-core/internal/instrument"
	"compliance-core/internal/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "archive_test",
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func testReport(reportID string) *compiler.CompiledReport {
	return &compiler.CompiledReport{
		ID:         uuid.New().String(),
		ReportID:   reportID,
		Regulator:  "SEC",
		ReportType: "10-K",
		RuleSetID:  "rs-sec-10k-2024",
		Encoding:   "csv",
		Artifact:   []byte("amount,entityId\n100.50,ENT-1\n"),
		Checksum:   "abc123",
		Validation: pipeline.ValidationResult{PassCount: 2},
		Lineage: []pipeline.Entry{
			{OutputField: "net", SourceFields: []string{"gross", "fees"}, RuleVersion: "net-amount@1", Record: 0},
			{OutputField: "net", SourceFields: []string{"net"}, RuleVersion: "net-rounded@1", Record: 0},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := testReport("rep-1")
	if err := s.SaveReport(ctx, r1); err != nil {
		t.Fatalf("save: %v", err)
	}
	if r1.Revision != 1 {
		t.Fatalf("first revision = %d", r1.Revision)
	}

	got, err := s.GetReport(ctx, "rep-1", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Revision != 1 || got.Encoding != "csv" || got.Checksum != "abc123" {
		t.Fatalf("report = %+v", got)
	}
	if !bytes.Equal(got.Artifact, r1.Artifact) {
		t.Fatalf("artifact = %q", got.Artifact)
	}
	if got.Validation.PassCount != 2 {
		t.Fatalf("validation = %+v", got.Validation)
	}
	if len(got.Lineage) != 2 || got.Lineage[1].RuleVersion != "net-rounded@1" {
		t.Fatalf("lineage = %+v", got.Lineage)
	}
	if got.Lineage[0].SourceFields[1] != "fees" {
		t.Fatalf("sources = %+v", got.Lineage[0].SourceFields)
	}
}

func TestResubmissionGetsNextRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := testReport("rep-1")
	r2 := testReport("rep-1")
	r2.Checksum = "def456"
	if err := s.SaveReport(ctx, r1); err != nil {
		t.Fatalf("save r1: %v", err)
	}
	if err := s.SaveReport(ctx, r2); err != nil {
		t.Fatalf("save r2: %v", err)
	}
	if r2.Revision != 2 {
		t.Fatalf("second revision = %d", r2.Revision)
	}

	// revision <= 0 resolves to the latest.
	latest, err := s.GetReport(ctx, "rep-1", 0)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Revision != 2 || latest.Checksum != "def456" {
		t.Fatalf("latest = %+v", latest)
	}

	// Earlier revisions stay retrievable untouched.
	first, err := s.GetReport(ctx, "rep-1", 1)
	if err != nil {
		t.Fatalf("get rev 1: %v", err)
	}
	if first.Checksum != "abc123" {
		t.Fatalf("rev 1 = %+v", first)
	}

	revs, err := s.ListRevisions(ctx, "rep-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(revs) != 2 || revs[0].Revision != 1 || revs[1].Revision != 2 {
		t.Fatalf("revisions = %+v", revs)
	}
}

func TestGetReportNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetReport(context.Background(), "nope", 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	status := "ok"
	entity := "report_run"
	recordID := "run-1"
	events := []instrument.Event{
		{
			TraceID: "t1", SpanID: "s1", EventType: "system",
			Source: "pipeline", Component: "engine", Action: "run.execute",
			Entity: &entity, RecordID: &recordID, Status: &status,
			Metadata:  map[string]any{"records": float64(3)},
			CreatedAt: time.Now().UTC(),
		},
		{
			TraceID: "t1", SpanID: "s2", EventType: "business",
			Source: "pipeline", Component: "business", Action: "run.state.blocked",
			CreatedAt: time.Now().UTC(),
		},
	}
	if err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.QueryEvents(ctx, instrument.EventFilter{Action: "run.execute"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events", len(got))
	}
	e := got[0]
	if e.SpanID != "s1" || e.Entity == nil || *e.Entity != "report_run" {
		t.Fatalf("event = %+v", e)
	}
	if e.Metadata["records"] != float64(3) {
		t.Fatalf("metadata = %+v", e.Metadata)
	}

	all, err := s.QueryEvents(ctx, instrument.EventFilter{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d events", len(all))
	}
}

func TestCleanupOldEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := instrument.Event{
		TraceID: "t1", SpanID: "s1", EventType: "system",
		Source: "pipeline", Component: "engine", Action: "run.execute",
		CreatedAt: time.Now().UTC().AddDate(0, 0, -30),
	}
	fresh := old
	fresh.SpanID = "s2"
	fresh.CreatedAt = time.Now().UTC()
	if err := s.InsertEvents(ctx, []instrument.Event{old, fresh}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	s.CleanupOldEvents(ctx, 7)

	got, err := s.QueryEvents(ctx, instrument.EventFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].SpanID != "s2" {
		t.Fatalf("events after cleanup = %+v", got)
	}
}
