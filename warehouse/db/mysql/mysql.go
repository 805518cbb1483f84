// Package mysql implements the warehouse dialect for MySQL 8+.
package mysql

import (
	"fmt"
	"time"
)

type Dialect struct{}

func NewDialect() *Dialect {
	return &Dialect{}
}

func (*Dialect) Flavor() string {
	return "mysql"
}

func (*Dialect) Timestamp(t time.Time) string {
	return fmt.Sprintf("'%s'", t.Format("2006-01-02 15:04:05"))
}

func (*Dialect) AddHours(col string, hours int) string {
	return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d HOUR)", col, hours)
}

func (*Dialect) SubtractMinutes(col string, minutes int) string {
	return fmt.Sprintf("DATE_SUB(%s, INTERVAL %d MINUTE)", col, minutes)
}

func (*Dialect) RegexMatch(col, pattern string) string {
	return fmt.Sprintf("%s REGEXP '%s'", col, pattern)
}

func (*Dialect) DateTrunc(col string) string {
	return fmt.Sprintf("DATE(%s)", col)
}

func (*Dialect) DateDiff(startCol, endCol string) string {
	return fmt.Sprintf("DATEDIFF(%s, %s)", endCol, startCol)
}

// Percentile uses the GROUP_CONCAT/SUBSTRING_INDEX idiom since MySQL has no
// ordered-set percentile function.
func (*Dialect) Percentile(col string, fraction float64) string {
	return fmt.Sprintf(
		"SUBSTRING_INDEX(SUBSTRING_INDEX(GROUP_CONCAT(%s ORDER BY %s SEPARATOR ','), ',', CEILING(%g * COUNT(*))), ',', -1)",
		col, col, fraction)
}

func (*Dialect) QualifyTable(name string) string {
	return name
}
