package archive

import "fmt"

// PostgresDialect targets PostgreSQL through the pgx stdlib driver.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) TablesSQL() string {
	return `
CREATE TABLE IF NOT EXISTS _reports (
    id          TEXT PRIMARY KEY,
    report_id   TEXT NOT NULL,
    revision    INT NOT NULL,
    regulator   TEXT NOT NULL,
    report_type TEXT NOT NULL,
    ruleset_id  TEXT NOT NULL,
    encoding    TEXT NOT NULL,
    artifact    BYTEA NOT NULL,
    checksum    TEXT NOT NULL,
    validation  JSONB NOT NULL,
    created_at  TEXT NOT NULL,
    UNIQUE (report_id, revision)
);

CREATE TABLE IF NOT EXISTS _lineage (
    report_pk     TEXT NOT NULL REFERENCES _reports(id) ON DELETE CASCADE,
    seq           INT NOT NULL,
    record_idx    INT NOT NULL,
    output_field  TEXT NOT NULL,
    source_fields JSONB NOT NULL,
    rule_version  TEXT NOT NULL,
    PRIMARY KEY (report_pk, seq)
);

CREATE TABLE IF NOT EXISTS _events (
    trace_id       TEXT,
    span_id        TEXT,
    parent_span_id TEXT,
    event_type     TEXT NOT NULL,
    source         TEXT NOT NULL,
    component      TEXT NOT NULL,
    action         TEXT NOT NULL,
    entity         TEXT,
    record_id      TEXT,
    duration_ms    DOUBLE PRECISION,
    status         TEXT,
    metadata       JSONB,
    created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_action ON _events(action);
CREATE INDEX IF NOT EXISTS idx_events_record ON _events(record_id);
`
}
