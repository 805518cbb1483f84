// Package snowflake implements the warehouse dialect for Snowflake. There is
// no built-in connector; callers inject their own QueryRunner.
package snowflake

import (
	"fmt"
	"time"
)

type Dialect struct{}

func NewDialect() *Dialect {
	return &Dialect{}
}

func (*Dialect) Flavor() string {
	return "snowflake"
}

func (*Dialect) Timestamp(t time.Time) string {
	return fmt.Sprintf("'%s'::timestamp", t.Format("2006-01-02 15:04:05"))
}

func (*Dialect) AddHours(col string, hours int) string {
	return fmt.Sprintf("DATEADD(hour, %d, %s)", hours, col)
}

func (*Dialect) SubtractMinutes(col string, minutes int) string {
	return fmt.Sprintf("DATEADD(minute, -%d, %s)", minutes, col)
}

func (*Dialect) RegexMatch(col, pattern string) string {
	return fmt.Sprintf("RLIKE(%s, '%s')", col, pattern)
}

func (*Dialect) DateTrunc(col string) string {
	return fmt.Sprintf("DATE_TRUNC('DAY', %s)", col)
}

func (*Dialect) DateDiff(startCol, endCol string) string {
	return fmt.Sprintf("DATEDIFF(day, %s, %s)", startCol, endCol)
}

func (*Dialect) Percentile(col string, fraction float64) string {
	return fmt.Sprintf("APPROX_PERCENTILE(%s, %g)", col, fraction)
}

func (*Dialect) QualifyTable(name string) string {
	return name
}
