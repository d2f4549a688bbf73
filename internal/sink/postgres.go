package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// DefaultTable is the table PostgresSink loads into.
const DefaultTable = "kintone_records"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink stores each record as a JSONB row tagged with stream and run.
// A committed run replaces the earlier rows of its stream.
type PostgresSink struct {
	db    *sql.DB
	table string
}

// NewPostgresSink loads into table. The sink owns db and closes it.
func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, wrapError(CodeInvalidConfig, false, fmt.Errorf("invalid table name %q", table))
	}
	return &PostgresSink{db: db, table: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// Prepare creates the table when missing.
func (p *PostgresSink) Prepare(ctx context.Context, stream Stream, schema *endpoint.Schema) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + p.table +
		" (stream TEXT NOT NULL, run_id UUID NOT NULL, record JSONB NOT NULL, loaded_at TIMESTAMPTZ NOT NULL DEFAULT now())"
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return wrapError(CodeWriteFailed, true, fmt.Errorf("create table: %w", err))
	}
	return nil
}

// Write inserts the batch with one multi-row statement.
func (p *PostgresSink) Write(ctx context.Context, stream Stream, records []endpoint.Record) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.table)
	b.WriteString(" (stream, run_id, record) VALUES ")

	args := make([]any, 0, len(records)*3)
	for i, rec := range records {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3))
		payload, err := json.Marshal(rec)
		if err != nil {
			return wrapError(CodeWriteFailed, false, fmt.Errorf("marshal record: %w", err))
		}
		args = append(args, stream.Name, stream.RunID, string(payload))
	}

	if _, err := p.db.ExecContext(ctx, b.String(), args...); err != nil {
		return wrapError(CodeWriteFailed, true, err)
	}
	return nil
}

// Commit drops rows of the stream left by other runs.
func (p *PostgresSink) Commit(ctx context.Context, stream Stream) error {
	query := "DELETE FROM " + p.table + " WHERE stream = $1 AND run_id <> $2"
	if _, err := p.db.ExecContext(ctx, query, stream.Name, stream.RunID); err != nil {
		return wrapError(CodeWriteFailed, true, fmt.Errorf("replace previous runs: %w", err))
	}
	return nil
}

func (p *PostgresSink) Close() error {
	return p.db.Close()
}
