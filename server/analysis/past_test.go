package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/splitsense/warehouse"
)

func day(base time.Time, offset int) time.Time {
	return base.AddDate(0, 0, offset)
}

// steadyRun builds n consecutive days of usersPerDay assignments.
func steadyRun(key, variation string, base time.Time, startOffset, n int, usersPerDay int64) []warehouse.AssignmentDay {
	var out []warehouse.AssignmentDay
	for i := 0; i < n; i++ {
		out = append(out, warehouse.AssignmentDay{
			TrackingKey: key,
			VariationID: variation,
			Date:        day(base, startOffset+i),
			Users:       usersPerDay,
		})
	}
	return out
}

func TestDiscoverPastExperiments(t *testing.T) {
	horizon := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("steady run survives, spurious day is trimmed", func(t *testing.T) {
		days := steadyRun("pricing-test", "0", horizon, 60, 10, 25)
		// A single stray assignment five days after the run ended.
		days = append(days, warehouse.AssignmentDay{
			TrackingKey: "pricing-test",
			VariationID: "0",
			Date:        day(horizon, 74),
			Users:       1,
		})

		out := discoverPastExperiments(days, horizon)
		require.Len(t, out, 1)
		assert.Equal(t, "pricing-test", out[0].TrackingKey)
		assert.Equal(t, "0", out[0].VariationID)
		assert.Equal(t, int64(250), out[0].Users)
		assert.Equal(t, day(horizon, 60), out[0].StartDate)
		assert.Equal(t, day(horizon, 69), out[0].EndDate)
	})

	t.Run("low-traffic variation is discarded", func(t *testing.T) {
		// 10 days at 20/day is exactly 200 total, at the threshold.
		out := discoverPastExperiments(steadyRun("quiet-test", "0", horizon, 60, 10, 20), horizon)
		assert.Empty(t, out)
	})

	t.Run("short run is discarded", func(t *testing.T) {
		// 5 days means a 4-day span, under the minimum.
		out := discoverPastExperiments(steadyRun("burst-test", "0", horizon, 60, 5, 100), horizon)
		assert.Empty(t, out)
	})

	t.Run("run starting at the horizon is discarded", func(t *testing.T) {
		out := discoverPastExperiments(steadyRun("old-test", "0", horizon, 1, 10, 100), horizon)
		assert.Empty(t, out)
	})

	t.Run("days below five percent of peak are trimmed", func(t *testing.T) {
		days := steadyRun("spike-test", "0", horizon, 60, 10, 1000)
		// 30 users clears the absolute floor but not 5% of a 1000 peak.
		days = append(days, warehouse.AssignmentDay{
			TrackingKey: "spike-test",
			VariationID: "0",
			Date:        day(horizon, 80),
			Users:       30,
		})

		out := discoverPastExperiments(days, horizon)
		require.Len(t, out, 1)
		assert.Equal(t, day(horizon, 69), out[0].EndDate)
		assert.Equal(t, int64(10000), out[0].Users)
	})

	t.Run("variations are independent", func(t *testing.T) {
		days := steadyRun("split-test", "0", horizon, 60, 10, 100)
		days = append(days, steadyRun("split-test", "1", horizon, 60, 10, 3)...)

		out := discoverPastExperiments(days, horizon)
		require.Len(t, out, 1)
		assert.Equal(t, "0", out[0].VariationID)
	})
}

func TestPastExperiments(t *testing.T) {
	base := time.Now().AddDate(0, 0, -100)
	var rows []warehouse.Row
	for i := 0; i < 10; i++ {
		rows = append(rows, warehouse.Row{
			"experiment_id": "nav-test",
			"variation_id":  "1",
			"date":          day(base, i).Format("2006-01-02 15:04:05"),
			"users":         "40",
		})
	}

	analyzer := testAnalyzer(&fakeRunner{rules: []fakeRule{
		{contains: "-- past experiments", rows: rows},
	}})
	out, query, err := analyzer.PastExperiments(context.Background())
	require.NoError(t, err)
	assert.Contains(t, query, "-- past experiments")
	require.Len(t, out, 1)
	assert.Equal(t, "nav-test", out[0].TrackingKey)
	assert.Equal(t, int64(400), out[0].Users)
}
