// Package bigquery implements the warehouse dialect for Google BigQuery.
// There is no built-in connector; callers inject their own QueryRunner.
package bigquery

import (
	"fmt"
	"time"
)

type Dialect struct {
	// ProjectID and Dataset qualify every table reference. Either may be
	// empty when the runner's session already defaults them.
	ProjectID string
	Dataset   string
}

func NewDialect(projectID, dataset string) *Dialect {
	return &Dialect{ProjectID: projectID, Dataset: dataset}
}

func (*Dialect) Flavor() string {
	return "bigquery"
}

func (*Dialect) Timestamp(t time.Time) string {
	return fmt.Sprintf("TIMESTAMP '%s'", t.Format("2006-01-02 15:04:05"))
}

func (*Dialect) AddHours(col string, hours int) string {
	return fmt.Sprintf("TIMESTAMP_ADD(%s, INTERVAL %d HOUR)", col, hours)
}

func (*Dialect) SubtractMinutes(col string, minutes int) string {
	return fmt.Sprintf("TIMESTAMP_SUB(%s, INTERVAL %d MINUTE)", col, minutes)
}

func (*Dialect) RegexMatch(col, pattern string) string {
	return fmt.Sprintf("REGEXP_CONTAINS(%s, r'%s')", col, pattern)
}

func (*Dialect) DateTrunc(col string) string {
	return fmt.Sprintf("TIMESTAMP_TRUNC(%s, DAY)", col)
}

func (*Dialect) DateDiff(startCol, endCol string) string {
	return fmt.Sprintf("TIMESTAMP_DIFF(%s, %s, DAY)", endCol, startCol)
}

func (*Dialect) Percentile(col string, fraction float64) string {
	return fmt.Sprintf("APPROX_QUANTILES(%s, 100)[OFFSET(%d)]", col, int(fraction*100))
}

func (d *Dialect) QualifyTable(name string) string {
	switch {
	case d.ProjectID != "" && d.Dataset != "":
		return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.Dataset, name)
	case d.Dataset != "":
		return fmt.Sprintf("`%s.%s`", d.Dataset, name)
	default:
		return name
	}
}
