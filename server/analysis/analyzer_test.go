package analysis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/splitsense/warehouse"
	"github.com/hrygo/splitsense/warehouse/db/postgres"
)

type fakeRule struct {
	contains string
	rows     []warehouse.Row
	err      error
	delay    time.Duration
}

// fakeRunner matches queries by substring, in rule order.
type fakeRunner struct {
	rules []fakeRule
}

func (f *fakeRunner) Run(_ context.Context, query string) ([]warehouse.Row, error) {
	for _, rule := range f.rules {
		if strings.Contains(query, rule.contains) {
			time.Sleep(rule.delay)
			return rule.rows, rule.err
		}
	}
	return nil, nil
}

func testAnalyzer(runner warehouse.QueryRunner) *Analyzer {
	composer := warehouse.NewComposer(warehouse.ResolveSettings(warehouse.SettingsInput{}), postgres.NewDialect())
	return New(composer, runner)
}

func fixtureParams() *ExperimentParams {
	return &ExperimentParams{
		Experiment: &warehouse.Experiment{
			TrackingKey: "checkout-test",
			UserIDType:  warehouse.IDTypeUser,
			Variations:  []string{"0", "1"},
		},
		Phase: &warehouse.Phase{DateStarted: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		Metrics: []*warehouse.Metric{
			{ID: "signup", Name: "Signup", Type: warehouse.MetricBinomial, Table: "signups", UserIDType: warehouse.IDTypeUser},
			{ID: "revenue", Name: "Revenue", Type: warehouse.MetricRevenue, Table: "orders", Column: "amount", UserIDType: warehouse.IDTypeUser},
		},
	}
}

func fixtureRules(signupDelay, revenueDelay time.Duration) []fakeRule {
	return []fakeRule{
		{contains: "- users", rows: []warehouse.Row{
			{"dimension": "", "variation": "0", "users": "120"},
			{"dimension": "", "variation": "1", "users": "130"},
		}},
		{contains: "metric Signup", delay: signupDelay, rows: []warehouse.Row{
			{"dimension": "", "variation": "0", "count": "30", "mean": "1", "stddev": "0"},
			{"dimension": "", "variation": "1", "count": "41", "mean": "1", "stddev": "0"},
		}},
		{contains: "metric Revenue", delay: revenueDelay, rows: []warehouse.Row{
			{"dimension": "", "variation": "0", "count": "28", "mean": "19.5", "stddev": "4.1"},
			{"dimension": "", "variation": "1", "count": "39", "mean": "22.0", "stddev": "5.0"},
		}},
	}
}

func TestExperimentResults_Merge(t *testing.T) {
	results, err := testAnalyzer(&fakeRunner{rules: fixtureRules(0, 0)}).
		ExperimentResults(context.Background(), fixtureParams())
	require.NoError(t, err)

	require.Len(t, results.Dimensions, 1)
	dim := results.Dimensions[0]
	assert.Equal(t, "", dim.Dimension)
	require.Len(t, dim.Variations, 2)

	control := dim.Variations[0]
	assert.Equal(t, 0, control.Variation)
	assert.Equal(t, int64(120), control.Users)
	require.Len(t, control.Metrics, 2)
	// Insertion order follows metric iteration order.
	assert.Equal(t, "signup", control.Metrics[0].MetricID)
	assert.Equal(t, "revenue", control.Metrics[1].MetricID)
	assert.Equal(t, int64(28), control.Metrics[1].Count)

	assert.Equal(t, int64(130), dim.Variations[1].Users)

	// The audit string carries all three composed queries.
	assert.Equal(t, 2, strings.Count(results.Query, "-- experiment checkout-test - metric"))
	assert.Contains(t, results.Query, "-- experiment checkout-test - users")
}

func TestExperimentResults_MergeIsCompletionOrderIndependent(t *testing.T) {
	first, err := testAnalyzer(&fakeRunner{rules: fixtureRules(30*time.Millisecond, 0)}).
		ExperimentResults(context.Background(), fixtureParams())
	require.NoError(t, err)

	second, err := testAnalyzer(&fakeRunner{rules: fixtureRules(0, 30*time.Millisecond)}).
		ExperimentResults(context.Background(), fixtureParams())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExperimentResults_AllOrNothing(t *testing.T) {
	rules := fixtureRules(0, 0)
	rules[2].rows = nil
	rules[2].err = errors.New("connection reset")

	_, err := testAnalyzer(&fakeRunner{rules: rules}).
		ExperimentResults(context.Background(), fixtureParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revenue")
}

func TestExperimentResults_DimensionBuckets(t *testing.T) {
	params := fixtureParams()
	params.Metrics = params.Metrics[:1]
	params.Dimension = &warehouse.Dimension{
		Name:       "device",
		UserIDType: warehouse.IDTypeUser,
		SQL:        "SELECT user_id, device AS value FROM accounts",
	}
	runner := &fakeRunner{rules: []fakeRule{
		{contains: "- users", rows: []warehouse.Row{
			{"dimension": "mobile", "variation": "0", "users": "60"},
			{"dimension": "desktop", "variation": "0", "users": "55"},
			{"dimension": "mobile", "variation": "1", "users": "64"},
		}},
		{contains: "metric Signup", rows: []warehouse.Row{
			{"dimension": "mobile", "variation": "1", "count": "12", "mean": "1", "stddev": "0"},
		}},
	}}

	results, err := testAnalyzer(runner).ExperimentResults(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, results.Dimensions, 2)

	byName := map[string]warehouse.DimensionResult{}
	for _, d := range results.Dimensions {
		byName[d.Dimension] = d
	}
	assert.Equal(t, int64(60), byName["mobile"].Variations[0].Users)
	assert.Equal(t, int64(55), byName["desktop"].Variations[0].Users)
	require.Len(t, byName["mobile"].Variations[1].Metrics, 1)
	assert.Equal(t, int64(12), byName["mobile"].Variations[1].Metrics[0].Count)
	// Buckets with no metric rows still exist with zeroed stats.
	assert.Empty(t, byName["desktop"].Variations[1].Metrics)
}

func TestExperimentResults_DropsUnresolvedVariations(t *testing.T) {
	params := fixtureParams()
	params.Metrics = nil
	runner := &fakeRunner{rules: []fakeRule{
		{contains: "- users", rows: []warehouse.Row{
			{"dimension": "", "variation": "0", "users": "100"},
			{"dimension": "", "variation": "5", "users": "999"},
		}},
	}}

	results, err := testAnalyzer(runner).ExperimentResults(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, results.Dimensions, 1)
	assert.Equal(t, int64(100), results.Dimensions[0].Variations[0].Users)
	assert.Equal(t, int64(0), results.Dimensions[0].Variations[1].Users)
}
