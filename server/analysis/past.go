package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/splitsense/warehouse"
)

// Past-experiment discovery rejects assignment noise with fixed thresholds.
// These are load-bearing constants, not tunables: changing any of them
// changes which historical experiments surface at all.
const (
	// pastLookbackDays is how far back discovery scans.
	pastLookbackDays = 365
	// noiseFraction: days below this share of the variation's peak daily
	// count are discarded.
	noiseFraction = 0.05
	// minDailyUsers: days at or below this count are discarded outright.
	minDailyUsers = 5
	// minTotalUsers: variations at or below this total are discarded.
	minTotalUsers = 200
	// minSpanDays: runs spanning this many days or fewer are discarded.
	minSpanDays = 5
	// horizonPadDays: runs starting within this many days of the lookback
	// horizon are discarded as boundary truncation artifacts.
	horizonPadDays = 2
)

// PastExperiments discovers historical experiment runs from assignment
// events, returning one row per surviving experiment variation plus the
// composed query for audit.
func (a *Analyzer) PastExperiments(ctx context.Context) ([]warehouse.PastExperiment, string, error) {
	from := time.Now().AddDate(0, 0, -pastLookbackDays)
	query := a.composer.PastExperimentsQuery(from)

	rows, err := a.runner.Run(ctx, query)
	if err != nil {
		return nil, query, errors.Wrap(err, "past experiments query failed")
	}

	return discoverPastExperiments(warehouse.ParseAssignmentDays(rows), from), query, nil
}

type variationKey struct {
	trackingKey string
	variationID string
}

// discoverPastExperiments collapses daily assignment counts into one row per
// experiment variation, applying the noise heuristics in order: absolute
// daily floor, then the 5%-of-peak threshold, then the total/span/boundary
// filters.
func discoverPastExperiments(days []warehouse.AssignmentDay, horizon time.Time) []warehouse.PastExperiment {
	grouped := map[variationKey][]warehouse.AssignmentDay{}
	var order []variationKey
	for _, day := range days {
		key := variationKey{day.TrackingKey, day.VariationID}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], day)
	}

	var out []warehouse.PastExperiment
	for _, key := range order {
		var peak int64
		for _, day := range grouped[key] {
			if day.Users > peak {
				peak = day.Users
			}
		}
		threshold := noiseFraction * float64(peak)

		var kept []warehouse.AssignmentDay
		for _, day := range grouped[key] {
			if day.Users <= minDailyUsers {
				continue
			}
			if float64(day.Users) < threshold {
				continue
			}
			kept = append(kept, day)
		}
		if len(kept) == 0 {
			continue
		}

		sort.Slice(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })
		exp := warehouse.PastExperiment{
			TrackingKey: key.trackingKey,
			VariationID: key.variationID,
			StartDate:   kept[0].Date,
			EndDate:     kept[len(kept)-1].Date,
		}
		for _, day := range kept {
			exp.Users += day.Users
		}

		if exp.Users <= minTotalUsers {
			continue
		}
		if exp.EndDate.Sub(exp.StartDate) <= minSpanDays*24*time.Hour {
			continue
		}
		if exp.StartDate.Before(horizon.AddDate(0, 0, horizonPadDays)) {
			continue
		}
		out = append(out, exp)
	}
	return out
}
