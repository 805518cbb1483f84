package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/splitsense/internal/profile"
	"github.com/hrygo/splitsense/warehouse"
	"github.com/hrygo/splitsense/warehouse/db/bigquery"
	"github.com/hrygo/splitsense/warehouse/db/clickhouse"
	"github.com/hrygo/splitsense/warehouse/db/mysql"
	"github.com/hrygo/splitsense/warehouse/db/postgres"
	"github.com/hrygo/splitsense/warehouse/db/snowflake"
)

func allDialects() []warehouse.Dialect {
	return []warehouse.Dialect{
		postgres.NewDialect(),
		mysql.NewDialect(),
		clickhouse.NewDialect(),
		bigquery.NewDialect("", ""),
		snowflake.NewDialect(),
	}
}

func TestNewDialect(t *testing.T) {
	for _, flavor := range []string{"postgres", "mysql", "clickhouse", "bigquery", "snowflake"} {
		d, err := NewDialect(&profile.Profile{Flavor: flavor})
		require.NoError(t, err, flavor)
		assert.Equal(t, flavor, d.Flavor())
	}
	_, err := NewDialect(&profile.Profile{Flavor: "oracle"})
	assert.Error(t, err)
}

// TestDialectFragments pins each flavor's syntax for the shared fixture. The
// expected strings were validated against each engine's documentation; the
// fixture is identical across flavors so the rows only diverge in syntax,
// never in meaning.
func TestDialectFragments(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		flavor          string
		timestamp       string
		addHours        string
		subtractMinutes string
		regex           string
		dateTrunc       string
		dateDiff        string
		percentile      string
	}{
		{
			flavor:          "postgres",
			timestamp:       "'2026-05-01 12:30:00'::timestamp",
			addHours:        "t.ts + INTERVAL '72 hours'",
			subtractMinutes: "t.ts - INTERVAL '30 minutes'",
			regex:           "t.path ~ '^/pricing'",
			dateTrunc:       "date_trunc('day', t.ts)",
			dateDiff:        "(t.b::DATE - t.a::DATE)",
			percentile:      "PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY t.v)",
		},
		{
			flavor:          "mysql",
			timestamp:       "'2026-05-01 12:30:00'",
			addHours:        "DATE_ADD(t.ts, INTERVAL 72 HOUR)",
			subtractMinutes: "DATE_SUB(t.ts, INTERVAL 30 MINUTE)",
			regex:           "t.path REGEXP '^/pricing'",
			dateTrunc:       "DATE(t.ts)",
			dateDiff:        "DATEDIFF(t.b, t.a)",
			percentile:      "SUBSTRING_INDEX(SUBSTRING_INDEX(GROUP_CONCAT(t.v ORDER BY t.v SEPARATOR ','), ',', CEILING(0.5 * COUNT(*))), ',', -1)",
		},
		{
			flavor:          "clickhouse",
			timestamp:       "toDateTime('2026-05-01 12:30:00')",
			addHours:        "addHours(t.ts, 72)",
			subtractMinutes: "subtractMinutes(t.ts, 30)",
			regex:           "match(t.path, '^/pricing')",
			dateTrunc:       "toStartOfDay(t.ts)",
			dateDiff:        "dateDiff('day', t.a, t.b)",
			percentile:      "quantile(0.5)(t.v)",
		},
		{
			flavor:          "bigquery",
			timestamp:       "TIMESTAMP '2026-05-01 12:30:00'",
			addHours:        "TIMESTAMP_ADD(t.ts, INTERVAL 72 HOUR)",
			subtractMinutes: "TIMESTAMP_SUB(t.ts, INTERVAL 30 MINUTE)",
			regex:           "REGEXP_CONTAINS(t.path, r'^/pricing')",
			dateTrunc:       "TIMESTAMP_TRUNC(t.ts, DAY)",
			dateDiff:        "TIMESTAMP_DIFF(t.b, t.a, DAY)",
			percentile:      "APPROX_QUANTILES(t.v, 100)[OFFSET(50)]",
		},
		{
			flavor:          "snowflake",
			timestamp:       "'2026-05-01 12:30:00'::timestamp",
			addHours:        "DATEADD(hour, 72, t.ts)",
			subtractMinutes: "DATEADD(minute, -30, t.ts)",
			regex:           "RLIKE(t.path, '^/pricing')",
			dateTrunc:       "DATE_TRUNC('DAY', t.ts)",
			dateDiff:        "DATEDIFF(day, t.a, t.b)",
			percentile:      "APPROX_PERCENTILE(t.v, 0.5)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.flavor, func(t *testing.T) {
			d, err := NewDialect(&profile.Profile{Flavor: tt.flavor})
			require.NoError(t, err)
			assert.Equal(t, tt.timestamp, d.Timestamp(at))
			assert.Equal(t, tt.addHours, d.AddHours("t.ts", 72))
			assert.Equal(t, tt.subtractMinutes, d.SubtractMinutes("t.ts", 30))
			assert.Equal(t, tt.regex, d.RegexMatch("t.path", "^/pricing"))
			assert.Equal(t, tt.dateTrunc, d.DateTrunc("t.ts"))
			assert.Equal(t, tt.dateDiff, d.DateDiff("t.a", "t.b"))
			assert.Equal(t, tt.percentile, d.Percentile("t.v", 0.5))
		})
	}
}

func TestQualifyTable(t *testing.T) {
	for _, d := range allDialects() {
		if d.Flavor() == "bigquery" {
			continue
		}
		assert.Equal(t, "events", d.QualifyTable("events"), d.Flavor())
	}
	assert.Equal(t, "`proj.ds.events`", bigquery.NewDialect("proj", "ds").QualifyTable("events"))
	assert.Equal(t, "`ds.events`", bigquery.NewDialect("", "ds").QualifyTable("events"))
}

func TestNewRunnerRequiresConnector(t *testing.T) {
	_, err := NewRunner(&profile.Profile{Flavor: "snowflake"})
	assert.Error(t, err)
}
