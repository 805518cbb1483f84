package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSettings_Defaults(t *testing.T) {
	s := ResolveSettings(SettingsInput{})

	assert.Equal(t, "user_id", s.Default.UserIDColumn)
	assert.Equal(t, "anonymous_id", s.Default.AnonymousIDColumn)
	assert.Equal(t, "received_at", s.Default.TimestampColumn)
	assert.Equal(t, "experiment_viewed", s.Experiments.Table)
	assert.Equal(t, "experiment_id", s.Experiments.ExperimentIDColumn)
	assert.Equal(t, "variation_id", s.Experiments.VariationColumn)
	assert.Equal(t, FormatIndex, s.Experiments.VariationFormat)
	assert.Equal(t, "users", s.Users.Table)
	assert.Equal(t, "pages", s.Pageviews.Table)
	assert.Equal(t, "path", s.Pageviews.URLColumn)
	assert.Equal(t, "identifies", s.Identifies.Table)
}

func TestResolveSettings_SectionInheritsGlobal(t *testing.T) {
	var raw SettingsInput
	raw.Default.UserIDColumn = "uid"
	raw.Default.TimestampColumn = "ts"
	s := ResolveSettings(raw)

	// Sections without their own setting inherit the merged global default,
	// never an empty string.
	assert.Equal(t, "uid", s.Experiments.UserIDColumn)
	assert.Equal(t, "ts", s.Experiments.TimestampColumn)
	assert.Equal(t, "uid", s.Pageviews.UserIDColumn)
	assert.Equal(t, "uid", s.Identifies.UserIDColumn)
}

func TestResolveSettings_SectionOverridesGlobal(t *testing.T) {
	var raw SettingsInput
	raw.Default.UserIDColumn = "uid"
	raw.Experiments.UserIDColumn = "subject_id"
	raw.Experiments.VariationFormat = FormatKey
	s := ResolveSettings(raw)

	assert.Equal(t, "subject_id", s.Experiments.UserIDColumn)
	assert.Equal(t, "uid", s.Pageviews.UserIDColumn)
	assert.Equal(t, FormatKey, s.Experiments.VariationFormat)
}

func TestMetricColumnPrecedence(t *testing.T) {
	var raw SettingsInput
	raw.Default.UserIDColumn = "uid"
	s := ResolveSettings(raw)

	plain := &Metric{ID: "m"}
	overridden := &Metric{ID: "m", Columns: &MetricColumns{UserID: "customer_id", Timestamp: "event_ts"}}

	assert.Equal(t, "uid", s.MetricUserIDColumn(plain, IDTypeUser))
	assert.Equal(t, "customer_id", s.MetricUserIDColumn(overridden, IDTypeUser))
	assert.Equal(t, "anonymous_id", s.MetricUserIDColumn(plain, IDTypeAnonymous))
	assert.Equal(t, "received_at", s.MetricTimestampColumn(plain))
	assert.Equal(t, "event_ts", s.MetricTimestampColumn(overridden))
}
