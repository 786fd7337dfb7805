package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"compliance-core/internal/compiler"
	"compliance-core/internal/pipeline"
)

// ReportMeta is a revision listing row: everything except the artifact.
type ReportMeta struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"report_id"`
	Revision   int       `json:"revision"`
	Regulator  string    `json:"regulator"`
	ReportType string    `json:"report_type"`
	RuleSetID  string    `json:"ruleset_id"`
	Encoding   string    `json:"encoding"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveReport persists a compiled report, assigning the next revision
// for its logical report id. The revision read and the insert sit in
// one transaction so concurrent saves of the same report id serialize
// instead of colliding. The stored row is never updated afterwards.
func (s *Store) SaveReport(ctx context.Context, r *compiler.CompiledReport) error {
	d := s.Dialect

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: begin: %w", err)
	}
	defer tx.Rollback()

	var maxRev int
	row := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(revision), 0) FROM _reports WHERE report_id = %s", d.Placeholder(1)),
		r.ReportID)
	if err := row.Scan(&maxRev); err != nil {
		return fmt.Errorf("save report: read revision: %w", err)
	}
	r.Revision = maxRev + 1

	validation, err := json.Marshal(r.Validation)
	if err != nil {
		return fmt.Errorf("save report: encode validation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO _reports
			(id, report_id, revision, regulator, report_type, ruleset_id, encoding, artifact, checksum, validation, created_at)
			VALUES (%s)`, placeholders(d, 1, 11)),
		r.ID, r.ReportID, r.Revision, r.Regulator, r.ReportType, r.RuleSetID,
		r.Encoding, r.Artifact, r.Checksum, string(validation),
		r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save report: insert: %w", err)
	}

	for seq, e := range r.Lineage {
		sources, err := json.Marshal(e.SourceFields)
		if err != nil {
			return fmt.Errorf("save report: encode lineage: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO _lineage
				(report_pk, seq, record_idx, output_field, source_fields, rule_version)
				VALUES (%s)`, placeholders(d, 1, 6)),
			r.ID, seq, e.Record, e.OutputField, string(sources), e.RuleVersion)
		if err != nil {
			return fmt.Errorf("save report: insert lineage: %w", err)
		}
	}

	return tx.Commit()
}

// GetReport loads a compiled report by logical id. revision <= 0 means
// the latest revision.
func (s *Store) GetReport(ctx context.Context, reportID string, revision int) (*compiler.CompiledReport, error) {
	d := s.Dialect

	query := fmt.Sprintf(`SELECT id, report_id, revision, regulator, report_type, ruleset_id,
			encoding, artifact, checksum, validation, created_at
		FROM _reports WHERE report_id = %s`, d.Placeholder(1))
	args := []any{reportID}
	if revision > 0 {
		query += fmt.Sprintf(" AND revision = %s", d.Placeholder(2))
		args = append(args, revision)
	} else {
		query += " ORDER BY revision DESC LIMIT 1"
	}

	var r compiler.CompiledReport
	var validation []byte
	var createdAt string
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(
		&r.ID, &r.ReportID, &r.Revision, &r.Regulator, &r.ReportType, &r.RuleSetID,
		&r.Encoding, &r.Artifact, &r.Checksum, &validation, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal(validation, &r.Validation); err != nil {
		return nil, fmt.Errorf("get report: decode validation: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}

	r.Lineage, err = s.loadLineage(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) loadLineage(ctx context.Context, reportPK string) ([]pipeline.Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT record_idx, output_field, source_fields, rule_version
			FROM _lineage WHERE report_pk = %s ORDER BY seq`, s.Dialect.Placeholder(1)),
		reportPK)
	if err != nil {
		return nil, fmt.Errorf("load lineage: %w", err)
	}
	defer rows.Close()

	var entries []pipeline.Entry
	for rows.Next() {
		var e pipeline.Entry
		var sources []byte
		if err := rows.Scan(&e.Record, &e.OutputField, &sources, &e.RuleVersion); err != nil {
			return nil, fmt.Errorf("load lineage: %w", err)
		}
		if err := json.Unmarshal(sources, &e.SourceFields); err != nil {
			return nil, fmt.Errorf("load lineage: decode sources: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListRevisions returns every stored revision of a logical report,
// oldest first, without artifacts.
func (s *Store) ListRevisions(ctx context.Context, reportID string) ([]ReportMeta, error) {
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, report_id, revision, regulator, report_type, ruleset_id, encoding, checksum, created_at
			FROM _reports WHERE report_id = %s ORDER BY revision`, s.Dialect.Placeholder(1)),
		reportID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []ReportMeta
	for rows.Next() {
		var m ReportMeta
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ReportID, &m.Revision, &m.Regulator, &m.ReportType,
			&m.RuleSetID, &m.Encoding, &m.Checksum, &createdAt); err != nil {
			return nil, fmt.Errorf("list revisions: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			m.CreatedAt = t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
