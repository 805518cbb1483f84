package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("SPLITSENSE_MODE", "prod")
	t.Setenv("SPLITSENSE_FLAVOR", "clickhouse")
	t.Setenv("SPLITSENSE_DSN", "clickhouse://localhost:9000/events")
	t.Setenv("SPLITSENSE_QUERIES_PER_SECOND", "2.5")
	t.Setenv("SPLITSENSE_CACHE_TTL_SECONDS", "300")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "prod", p.Mode)
	assert.Equal(t, "clickhouse", p.Flavor)
	assert.Equal(t, "clickhouse://localhost:9000/events", p.DSN)
	assert.Equal(t, 2.5, p.QueriesPerSecond)
	assert.Equal(t, 300, p.CacheTTLSeconds)
	assert.False(t, p.IsDev())
}

func TestFromEnvKeepsExistingValues(t *testing.T) {
	p := &Profile{Flavor: "postgres", DSN: "postgres://localhost/warehouse"}
	p.FromEnv()

	assert.Equal(t, "postgres", p.Flavor)
	assert.Equal(t, "postgres://localhost/warehouse", p.DSN)
	assert.True(t, p.IsDev())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{"postgres with dsn", Profile{Flavor: "postgres", DSN: "postgres://localhost/w"}, false},
		{"postgres without dsn", Profile{Flavor: "postgres"}, true},
		{"clickhouse without dsn", Profile{Flavor: "clickhouse"}, true},
		{"bigquery needs no dsn", Profile{Flavor: "bigquery"}, false},
		{"snowflake needs no dsn", Profile{Flavor: "snowflake"}, false},
		{"missing flavor", Profile{}, true},
		{"unknown flavor", Profile{Flavor: "oracle"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
