package agent

import (
	"context"
	"errors"

	"github.com/docsight/docsight/internal/domain"
)

// ErrExecutorUnavailable is returned when the query engine is not
// initialized (no database configured, or the session has no tabular data).
var ErrExecutorUnavailable = errors.New("agent: query executor unavailable")

// ErrQueryFailed is returned when the engine rejects a query (syntax error,
// missing table, and so on). Distinguished from ErrExecutorUnavailable for
// diagnostics only; the loop degrades identically on both.
var ErrQueryFailed = errors.New("agent: query failed")

// QueryExecutor runs one SQL query against the session's tabular data.
// Implementations return ErrExecutorUnavailable or an ErrQueryFailed-wrapped
// error; they never panic past this boundary.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (*domain.TableResult, error)
}

// degradedResult converts a local executor failure into data the reasoning
// service can see on the next round. RowCount stays zero so the placeholder
// is distinguishable from a real single-row result.
func degradedResult(detail string) *domain.TableResult {
	return &domain.TableResult{
		Columns:  []string{"error"},
		Rows:     []map[string]any{{"error": detail}},
		RowCount: 0,
	}
}
