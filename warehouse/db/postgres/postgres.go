// Package postgres implements the warehouse dialect and connector for
// PostgreSQL (and Redshift, which shares its syntax for every fragment this
// package emits).
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	// Postgres driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/splitsense/warehouse"
)

type Dialect struct{}

func NewDialect() *Dialect {
	return &Dialect{}
}

func (*Dialect) Flavor() string {
	return "postgres"
}

func (*Dialect) Timestamp(t time.Time) string {
	return fmt.Sprintf("'%s'::timestamp", t.Format("2006-01-02 15:04:05"))
}

func (*Dialect) AddHours(col string, hours int) string {
	return fmt.Sprintf("%s + INTERVAL '%d hours'", col, hours)
}

func (*Dialect) SubtractMinutes(col string, minutes int) string {
	return fmt.Sprintf("%s - INTERVAL '%d minutes'", col, minutes)
}

func (*Dialect) RegexMatch(col, pattern string) string {
	return fmt.Sprintf("%s ~ '%s'", col, pattern)
}

func (*Dialect) DateTrunc(col string) string {
	return fmt.Sprintf("date_trunc('day', %s)", col)
}

func (*Dialect) DateDiff(startCol, endCol string) string {
	return fmt.Sprintf("(%s::DATE - %s::DATE)", endCol, startCol)
}

func (*Dialect) Percentile(col string, fraction float64) string {
	return fmt.Sprintf("PERCENTILE_CONT(%s) WITHIN GROUP (ORDER BY %s)", formatFraction(fraction), col)
}

func (*Dialect) QualifyTable(name string) string {
	return name
}

func formatFraction(f float64) string {
	return fmt.Sprintf("%g", f)
}

// NewRunner opens a postgres connection and wraps it as a QueryRunner.
func NewRunner(dsn string) (warehouse.QueryRunner, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	return warehouse.NewSQLRunner(db), nil
}
