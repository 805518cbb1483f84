// Package clickhouse implements the warehouse dialect and connector for
// ClickHouse.
package clickhouse

import (
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/hrygo/splitsense/warehouse"
)

type Dialect struct{}

func NewDialect() *Dialect {
	return &Dialect{}
}

func (*Dialect) Flavor() string {
	return "clickhouse"
}

func (*Dialect) Timestamp(t time.Time) string {
	return fmt.Sprintf("toDateTime('%s')", t.Format("2006-01-02 15:04:05"))
}

func (*Dialect) AddHours(col string, hours int) string {
	return fmt.Sprintf("addHours(%s, %d)", col, hours)
}

func (*Dialect) SubtractMinutes(col string, minutes int) string {
	return fmt.Sprintf("subtractMinutes(%s, %d)", col, minutes)
}

func (*Dialect) RegexMatch(col, pattern string) string {
	return fmt.Sprintf("match(%s, '%s')", col, pattern)
}

func (*Dialect) DateTrunc(col string) string {
	return fmt.Sprintf("toStartOfDay(%s)", col)
}

func (*Dialect) DateDiff(startCol, endCol string) string {
	return fmt.Sprintf("dateDiff('day', %s, %s)", startCol, endCol)
}

func (*Dialect) Percentile(col string, fraction float64) string {
	return fmt.Sprintf("quantile(%g)(%s)", fraction, col)
}

func (*Dialect) QualifyTable(name string) string {
	return name
}

// NewRunner opens a ClickHouse connection through the database/sql bridge and
// wraps it as a QueryRunner.
func NewRunner(dsn string) (warehouse.QueryRunner, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clickhouse dsn: %w", err)
	}
	return warehouse.NewSQLRunner(clickhouse.OpenDB(opts)), nil
}
