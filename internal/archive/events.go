package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"compliance-core/internal/instrument"
)

// InsertEvents batch-inserts flushed instrumentation events. Satisfies
// instrument.EventSink.
func (s *Store) InsertEvents(ctx context.Context, events []instrument.Event) error {
	if len(events) == 0 {
		return nil
	}
	d := s.Dialect

	var sb strings.Builder
	sb.WriteString(`INSERT INTO _events
		(trace_id, span_id, parent_span_id, event_type, source, component, action,
		 entity, record_id, duration_ms, status, metadata, created_at) VALUES `)

	const cols = 13
	args := make([]any, 0, len(events)*cols)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(" + placeholders(d, i*cols+1, cols) + ")")

		var metadata any
		if e.Metadata != nil {
			b, err := json.Marshal(e.Metadata)
			if err == nil {
				metadata = string(b)
			}
		}
		args = append(args,
			e.TraceID, e.SpanID, e.ParentSpanID, e.EventType, e.Source, e.Component,
			e.Action, e.Entity, e.RecordID, e.DurationMs, e.Status, metadata,
			e.CreatedAt.UTC().Format(time.RFC3339Nano))
	}

	if _, err := s.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}

// QueryEvents returns events matching the filter, newest first.
// Satisfies instrument.EventQuerier; this is the dashboard
// collaborator's read-only surface.
func (s *Store) QueryEvents(ctx context.Context, f instrument.EventFilter) ([]instrument.Event, error) {
	d := s.Dialect

	var conditions []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		conditions = append(conditions, fmt.Sprintf("%s = %s", col, d.Placeholder(len(args)+1)))
		args = append(args, val)
	}
	add("event_type", f.EventType)
	add("source", f.Source)
	add("action", f.Action)
	add("entity", f.Entity)
	add("record_id", f.RecordID)

	query := `SELECT trace_id, span_id, parent_span_id, event_type, source, component,
		action, entity, record_id, duration_ms, status, metadata, created_at FROM _events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []instrument.Event
	for rows.Next() {
		var e instrument.Event
		var metadata *string
		var createdAt string
		if err := rows.Scan(&e.TraceID, &e.SpanID, &e.ParentSpanID, &e.EventType,
			&e.Source, &e.Component, &e.Action, &e.Entity, &e.RecordID,
			&e.DurationMs, &e.Status, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		if metadata != nil && *metadata != "" {
			if err := json.Unmarshal([]byte(*metadata), &e.Metadata); err != nil {
				e.Metadata = nil
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupOldEvents deletes events older than retentionDays.
func (s *Store) CleanupOldEvents(ctx context.Context, retentionDays int) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	result, err := s.DB.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM _events WHERE created_at < %s", s.Dialect.Placeholder(1)),
		cutoff)
	if err != nil {
		log.Printf("ERROR: event cleanup: %v", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Printf("Event cleanup: deleted %d old events", n)
	}
}
