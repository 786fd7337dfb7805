package archive

// SQLiteDialect targets SQLite through the modernc pure-Go driver.
// Used for single-node and development deployments.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

func (d *SQLiteDialect) TablesSQL() string {
	return `
CREATE TABLE IF NOT EXISTS _reports (
    id          TEXT PRIMARY KEY,
    report_id   TEXT NOT NULL,
    revision    INTEGER NOT NULL,
    regulator   TEXT NOT NULL,
    report_type TEXT NOT NULL,
    ruleset_id  TEXT NOT NULL,
    encoding    TEXT NOT NULL,
    artifact    BLOB NOT NULL,
    checksum    TEXT NOT NULL,
    validation  TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    UNIQUE (report_id, revision)
);

CREATE TABLE IF NOT EXISTS _lineage (
    report_pk     TEXT NOT NULL REFERENCES _reports(id) ON DELETE CASCADE,
    seq           INTEGER NOT NULL,
    record_idx    INTEGER NOT NULL,
    output_field  TEXT NOT NULL,
    source_fields TEXT NOT NULL,
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
    duration_ms    REAL,
    status         TEXT,
    metadata       TEXT,
    created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_action ON _events(action);
CREATE INDEX IF NOT EXISTS idx_events_record ON _events(record_id);
`
}
