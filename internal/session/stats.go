package session

import (
	"context"
	"database/sql"

	"github.com/roach88/workset/internal/persister"
)

// Stats counts the statements a session sent to the store.
type Stats struct {
	Queries int
	Execs   int
}

// Total returns the number of store round trips.
func (s Stats) Total() int { return s.Queries + s.Execs }

// countingExecutor forwards to an executor and counts statements.
type countingExecutor struct {
	ex    persister.Executor
	stats *Stats
}

func (c countingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.stats.Execs++
	return c.ex.ExecContext(ctx, query, args...)
}

func (c countingExecutor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.stats.Queries++
	return c.ex.QueryContext(ctx, query, args...)
}
