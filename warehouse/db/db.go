// Package db selects the dialect and connector for a warehouse flavor.
package db

import (
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/splitsense/internal/profile"
	"github.com/hrygo/splitsense/warehouse"
	"github.com/hrygo/splitsense/warehouse/db/bigquery"
	"github.com/hrygo/splitsense/warehouse/db/clickhouse"
	"github.com/hrygo/splitsense/warehouse/db/mysql"
	"github.com/hrygo/splitsense/warehouse/db/postgres"
	"github.com/hrygo/splitsense/warehouse/db/snowflake"
)

// NewDialect creates the SQL dialect for the profile's flavor.
func NewDialect(profile *profile.Profile) (warehouse.Dialect, error) {
	switch profile.Flavor {
	case "postgres":
		return postgres.NewDialect(), nil
	case "mysql":
		return mysql.NewDialect(), nil
	case "clickhouse":
		return clickhouse.NewDialect(), nil
	case "bigquery":
		return bigquery.NewDialect(profile.BigQueryProject, profile.BigQueryDataset), nil
	case "snowflake":
		return snowflake.NewDialect(), nil
	default:
		return nil, errors.Errorf("unknown warehouse flavor %q", profile.Flavor)
	}
}

// NewRunner creates the built-in query runner for the profile's flavor,
// throttled and cached when the profile asks for it. Flavors without a
// built-in connector (mysql, bigquery, snowflake) need a caller-injected
// runner.
func NewRunner(profile *profile.Profile) (warehouse.QueryRunner, error) {
	var runner warehouse.QueryRunner
	var err error
	switch profile.Flavor {
	case "postgres":
		runner, err = postgres.NewRunner(profile.DSN)
	case "clickhouse":
		runner, err = clickhouse.NewRunner(profile.DSN)
	default:
		return nil, errors.Errorf("no built-in connector for flavor %q", profile.Flavor)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create query runner")
	}
	if profile.QueriesPerSecond > 0 {
		runner = warehouse.NewLimitedRunner(runner, profile.QueriesPerSecond, 1)
	}
	if profile.CacheTTLSeconds > 0 {
		runner = warehouse.NewCachedRunner(runner, time.Duration(profile.CacheTTLSeconds)*time.Second)
	}
	return runner, nil
}
