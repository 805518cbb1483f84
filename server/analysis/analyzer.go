// Package analysis orchestrates warehouse queries for experiment analysis:
// concurrent fan-out over a shared query runner, all-or-nothing joining, and
// order-independent merging into per-dimension, per-variation results.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/splitsense/warehouse"
)

// Analyzer runs composed queries and merges their results. The composer and
// runner are shared across calls; the Analyzer itself holds no mutable state.
type Analyzer struct {
	composer *warehouse.Composer
	runner   warehouse.QueryRunner
}

// New creates an analyzer over one composer and one query runner.
func New(composer *warehouse.Composer, runner warehouse.QueryRunner) *Analyzer {
	return &Analyzer{composer: composer, runner: runner}
}

// ExperimentParams configures one analysis run.
type ExperimentParams struct {
	Experiment *warehouse.Experiment
	Phase      *warehouse.Phase
	Metrics    []*warehouse.Metric
	Activation *warehouse.Metric
	Dimension  *warehouse.Dimension
}

// ExperimentResults composes one users query plus one query per metric, runs
// them concurrently, and merges everything into a matrix keyed by dimension
// value and variation index. One failing query fails the whole call; partial
// results are never merged.
func (a *Analyzer) ExperimentResults(ctx context.Context, p *ExperimentParams) (*warehouse.ExperimentResults, error) {
	if p.Experiment == nil || p.Phase == nil {
		return nil, errors.New("experiment and phase are required")
	}

	runID := uuid.NewString()
	resolver := warehouse.NewVariationResolver(p.Experiment, a.composer.Settings.Experiments.VariationFormat)

	base := &warehouse.ExperimentQueryParams{
		Experiment: p.Experiment,
		Phase:      p.Phase,
		Activation: p.Activation,
		Dimension:  p.Dimension,
	}
	usersQuery := a.composer.ExperimentUsersQuery(base)

	metricQueries := make([]string, len(p.Metrics))
	for idx, m := range p.Metrics {
		mp := *base
		mp.Metric = m
		metricQueries[idx] = a.composer.ExperimentMetricQuery(&mp)
	}

	slog.Info("running experiment analysis",
		"run", runID,
		"experiment", p.Experiment.TrackingKey,
		"queries", len(metricQueries)+1)

	// Fan out: each branch fills its own slot, the merge below is
	// single-threaded once every branch has completed.
	var usersRows []warehouse.Row
	metricRows := make([][]warehouse.Row, len(p.Metrics))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := a.run(gctx, runID, usersQuery)
		if err != nil {
			return errors.Wrap(err, "users query failed")
		}
		usersRows = rows
		return nil
	})
	for idx := range p.Metrics {
		idx := idx
		g.Go(func() error {
			rows, err := a.run(gctx, runID, metricQueries[idx])
			if err != nil {
				return errors.Wrapf(err, "metric query %s failed", p.Metrics[idx].ID)
			}
			metricRows[idx] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := mergeExperimentResults(
		p.Experiment, p.Metrics, resolver,
		warehouse.ParseExperimentUsersRows(usersRows, resolver),
		metricRows,
	)
	results.Query = strings.Join(append([]string{usersQuery}, metricQueries...), "\n\n")
	return results, nil
}

// run executes one query with a short audit label in the logs.
func (a *Analyzer) run(ctx context.Context, runID, query string) ([]warehouse.Row, error) {
	label := shortuuid.New()
	start := time.Now()
	rows, err := a.runner.Run(ctx, query)
	slog.Debug("query finished",
		"run", runID,
		"query", label,
		"rows", len(rows),
		"elapsed", time.Since(start),
		"error", err)
	return rows, err
}

// mergeExperimentResults combines per-branch results. It is keyed by
// dimension value and resolved variation index, never by arrival order, so it
// is commutative over branch completion order.
func mergeExperimentResults(
	exp *warehouse.Experiment,
	metrics []*warehouse.Metric,
	resolver *warehouse.VariationResolver,
	users []warehouse.ExperimentUsersRow,
	metricRows [][]warehouse.Row,
) *warehouse.ExperimentResults {
	byDimension := map[string]*warehouse.DimensionResult{}
	var order []string

	bucket := func(dimension string) *warehouse.DimensionResult {
		if d, ok := byDimension[dimension]; ok {
			return d
		}
		d := &warehouse.DimensionResult{Dimension: dimension}
		d.Variations = make([]warehouse.VariationResult, len(exp.Variations))
		for idx := range d.Variations {
			d.Variations[idx].Variation = idx
		}
		byDimension[dimension] = d
		order = append(order, dimension)
		return d
	}

	for _, row := range users {
		bucket(row.Dimension).Variations[row.Variation].Users = row.Users
	}
	for idx, m := range metrics {
		for _, row := range warehouse.ParseExperimentMetricRows(metricRows[idx], resolver) {
			v := &bucket(row.Dimension).Variations[row.Variation]
			v.Metrics = append(v.Metrics, warehouse.MetricStats{
				MetricID: m.ID,
				Count:    row.Count,
				Mean:     row.Mean,
				Stddev:   row.Stddev,
			})
		}
	}

	results := &warehouse.ExperimentResults{}
	for _, dimension := range order {
		results.Dimensions = append(results.Dimensions, *byDimension[dimension])
	}
	return results
}
