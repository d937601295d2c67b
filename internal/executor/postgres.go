package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsight/docsight/internal/agent"
	"github.com/docsight/docsight/internal/domain"
)

const (
	queryTimeout = 15 * time.Second

	// maxResultRows caps rows pulled from the engine; the loop only ever
	// serializes the first 50 back to the planner anyway.
	maxResultRows = 500
)

// Postgres runs agent-authored SQL against per-session scratch tables.
// A nil pool means no database was configured; every Execute then fails
// with agent.ErrExecutorUnavailable and the loop degrades gracefully.
type Postgres struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ agent.QueryExecutor = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Execute runs one query in a read-only transaction with a statement
// timeout. Engine rejections (syntax, missing table) come back wrapped in
// agent.ErrQueryFailed so the orchestrator can fold the detail into an
// error-row result.
func (e *Postgres) Execute(ctx context.Context, query string) (*domain.TableResult, error) {
	if e == nil || e.pool == nil {
		return nil, agent.ErrExecutorUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %s", agent.ErrExecutorUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only tx, rollback is best effort

	if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = '10s'"); err != nil {
		return nil, fmt.Errorf("%w: %s", agent.ErrQueryFailed, err)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", agent.ErrQueryFailed, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	var out []map[string]any
	for rows.Next() {
		if len(out) >= maxResultRows {
			break
		}

		values, valErr := rows.Values()
		if valErr != nil {
			return nil, fmt.Errorf("%w: read row: %s", agent.ErrQueryFailed, valErr)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", agent.ErrQueryFailed, err)
	}

	return &domain.TableResult{Columns: columns, Rows: out, RowCount: len(out)}, nil
}

// LoadTable creates the session's scratch table from extracted tabular data
// and returns the table name plus the sanitized column names. All columns
// are TEXT; the planner is told as much in the schema description and casts
// as needed.
// TODO: reap scratch tables for sessions older than a day.
func (e *Postgres) LoadTable(ctx context.Context, sessionID uuid.UUID, data *domain.TabularData) (string, []string, error) {
	if e == nil || e.pool == nil {
		return "", nil, agent.ErrExecutorUnavailable
	}
	if data == nil || len(data.Columns) == 0 {
		return "", nil, fmt.Errorf("executor.Postgres.LoadTable: no columns")
	}

	table := TableName(sessionID)
	columns := sanitizeColumns(data.Columns)

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pgx.Identifier{col}.Sanitize() + " TEXT"
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
	if _, err := e.pool.Exec(ctx, ddl); err != nil {
		return "", nil, fmt.Errorf("executor.Postgres.LoadTable: create table: %w", err)
	}

	placeholders := make([]string, len(columns))
	quoted := make([]string, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	batch := &pgx.Batch{}
	for _, row := range data.Rows {
		args := make([]any, len(columns))
		for i := range columns {
			if i < len(row) {
				args[i] = row[i]
			} else {
				args[i] = ""
			}
		}
		batch.Queue(insert, args...)
	}

	if err := e.pool.SendBatch(ctx, batch).Close(); err != nil {
		return "", nil, fmt.Errorf("executor.Postgres.LoadTable: insert rows: %w", err)
	}

	return table, columns, nil
}

// TableName returns the scratch table name for a session.
func TableName(sessionID uuid.UUID) string {
	return "ds_" + strings.ReplaceAll(sessionID.String(), "-", "")
}

// sanitizeColumns maps raw CSV headers to safe, unique SQL identifiers.
func sanitizeColumns(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, len(raw))

	for i, name := range raw {
		col := sanitizeIdentifier(name)
		if col == "" {
			col = fmt.Sprintf("col_%d", i+1)
		}
		if n, dup := seen[col]; dup {
			seen[col] = n + 1
			col = fmt.Sprintf("%s_%d", col, n+1)
		}
		seen[col]++
		out[i] = col
	}

	return out
}

func sanitizeIdentifier(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == ' ', r == '-':
			b.WriteByte('_')
		}
	}

	s := strings.Trim(b.String(), "_")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
