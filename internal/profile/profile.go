package profile

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is the runtime configuration for a warehouse connection.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Flavor is the warehouse flavor (postgres, mysql, clickhouse, bigquery, snowflake)
	Flavor string
	// DSN is the connection string for flavors with a built-in connector
	DSN string

	// BigQueryProject and BigQueryDataset qualify BigQuery table references
	BigQueryProject string
	BigQueryDataset string

	// QueriesPerSecond throttles query admission. 0 disables throttling.
	QueriesPerSecond float64

	// CacheTTLSeconds memoizes identical query results for this long.
	// 0 disables the result cache.
	CacheTTLSeconds int

	// Version is the current version of the binary
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from SPLITSENSE_* environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("SPLITSENSE_MODE", p.Mode)
	p.Flavor = getEnvOrDefault("SPLITSENSE_FLAVOR", p.Flavor)
	p.DSN = getEnvOrDefault("SPLITSENSE_DSN", p.DSN)
	p.BigQueryProject = getEnvOrDefault("SPLITSENSE_BIGQUERY_PROJECT", p.BigQueryProject)
	p.BigQueryDataset = getEnvOrDefault("SPLITSENSE_BIGQUERY_DATASET", p.BigQueryDataset)
	if v := os.Getenv("SPLITSENSE_QUERIES_PER_SECOND"); v != "" {
		if qps, err := strconv.ParseFloat(v, 64); err == nil {
			p.QueriesPerSecond = qps
		}
	}
	if v := os.Getenv("SPLITSENSE_CACHE_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			p.CacheTTLSeconds = ttl
		}
	}
}

// Validate checks the profile before any connection is attempted.
func (p *Profile) Validate() error {
	if p.Flavor == "" {
		return errors.New("warehouse flavor is required")
	}
	switch p.Flavor {
	case "postgres", "clickhouse":
		if p.DSN == "" {
			return errors.Errorf("dsn is required for flavor %q", p.Flavor)
		}
	case "mysql", "bigquery", "snowflake":
		// No built-in connector; a custom runner must be injected.
	default:
		return errors.Errorf("unknown warehouse flavor %q", p.Flavor)
	}
	return nil
}
