package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Sink = (*PGSink)(nil)

// PGSink is a durable Postgres-backed audit sink. Append order per run is
// preserved through a sequence column.
type PGSink struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL,
	run_id         TEXT NOT NULL,
	stage_id       TEXT NOT NULL,
	status         TEXT NOT NULL,
	ts             TIMESTAMPTZ NOT NULL,
	input_summary  TEXT NOT NULL DEFAULT '',
	output_summary TEXT NOT NULL DEFAULT '',
	err            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_entries_run_idx ON audit_entries (run_id, seq);
`

// OpenPG connects to Postgres and ensures the audit schema exists.
func OpenPG(ctx context.Context, dsn string) (*PGSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &PGSink{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PGSink) Close() {
	s.pool.Close()
}

func (s *PGSink) Append(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, run_id, stage_id, status, ts, input_summary, output_summary, err)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.RunID, e.StageID, e.Status, e.Timestamp, e.InputSummary, e.OutputSummary, e.Err)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (s *PGSink) ByRun(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, stage_id, status, ts, input_summary, output_summary, err
		 FROM audit_entries WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("audit: query run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.StageID, &e.Status, &e.Timestamp,
			&e.InputSummary, &e.OutputSummary, &e.Err); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
