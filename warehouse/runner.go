package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Row is one result row, keyed by column name with text-typed values.
type Row map[string]string

// QueryRunner executes read-only SQL text against a warehouse and returns the
// rows with every column rendered as text. It is the only operation in this
// package that may suspend; cancellation is the caller's context.
type QueryRunner interface {
	Run(ctx context.Context, query string) ([]Row, error)
}

// SQLRunner adapts a database/sql handle (postgres via lib/pq, sqlite in
// tests) to the QueryRunner contract.
type SQLRunner struct {
	db *sql.DB
}

// NewSQLRunner wraps db as a QueryRunner.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) Run(ctx context.Context, query string) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = new(any)
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := Row{}
		for i, col := range cols {
			row[col] = renderValue(*(vals[i].(*any)))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// renderValue turns a driver value into the text form the parser expects.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(timestampFormat)
	default:
		return fmt.Sprint(val)
	}
}

// LimitedRunner throttles query admission with a token bucket. Warehouses
// bill per query and cap concurrent statements, so fan-out callers share one
// LimitedRunner per connection.
type LimitedRunner struct {
	inner   QueryRunner
	limiter *rate.Limiter
}

// NewLimitedRunner wraps inner, admitting at most perSecond queries per
// second with the given burst.
func NewLimitedRunner(inner QueryRunner, perSecond float64, burst int) *LimitedRunner {
	return &LimitedRunner{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *LimitedRunner) Run(ctx context.Context, query string) ([]Row, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Run(ctx, query)
}
