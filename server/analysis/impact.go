package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/splitsense/warehouse"
)

const (
	// impactLookbackDays is the trailing window impact estimates average over.
	impactLookbackDays = 30
	// impactSettleDays lags the window behind now so in-flight conversions
	// have settled.
	impactSettleDays = 3
)

// ImpactParams configures an impact estimate for a hypothetical experiment.
type ImpactParams struct {
	URLRegex   string
	Metric     *warehouse.Metric
	Segment    *warehouse.Segment
	UserIDType warehouse.IDType
}

// EstimateImpact projects daily traffic and metric value for users matching
// the URL filter, before any experiment is run. Empty result sets degrade to
// an all-zero estimate; only a failing query is an error.
func (a *Analyzer) EstimateImpact(ctx context.Context, p *ImpactParams) (*warehouse.ImpactEstimate, error) {
	if p.Metric == nil {
		return nil, errors.New("metric is required")
	}

	end := time.Now().AddDate(0, 0, -impactSettleDays)
	start := end.AddDate(0, 0, -impactLookbackDays)

	trafficQuery := a.composer.UsersQuery(&warehouse.UsersQueryParams{
		Name:       "impact traffic",
		URLRegex:   p.URLRegex,
		From:       start,
		To:         end,
		UserIDType: p.UserIDType,
		Segment:    p.Segment,
	})
	totalQuery := a.composer.MetricValueQuery(&warehouse.MetricValueQueryParams{
		Metric:     p.Metric,
		From:       start,
		To:         end,
		UserIDType: p.UserIDType,
	})
	scopedQuery := a.composer.MetricValueQuery(&warehouse.MetricValueQueryParams{
		Metric:     p.Metric,
		From:       start,
		To:         end,
		UserIDType: p.UserIDType,
		URLRegex:   p.URLRegex,
		Segment:    p.Segment,
	})

	var trafficRows, totalRows, scopedRows []warehouse.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := a.runner.Run(gctx, trafficQuery)
		trafficRows = rows
		return errors.Wrap(err, "traffic query failed")
	})
	g.Go(func() error {
		rows, err := a.runner.Run(gctx, totalQuery)
		totalRows = rows
		return errors.Wrap(err, "metric total query failed")
	})
	g.Go(func() error {
		rows, err := a.runner.Run(gctx, scopedQuery)
		scopedRows = rows
		return errors.Wrap(err, "scoped metric query failed")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	users := warehouse.ParseUsersRows(trafficRows)
	total := warehouse.ParseMetricValueRows(totalRows)
	scoped := warehouse.ParseMetricValueRows(scopedRows)

	return &warehouse.ImpactEstimate{
		Users:       float64(users.Users) / impactLookbackDays,
		Value:       float64(scoped.Count) * scoped.Mean / impactLookbackDays,
		MetricTotal: float64(total.Count) * total.Mean / impactLookbackDays,
		Query:       strings.Join([]string{trafficQuery, totalQuery, scopedQuery}, "\n\n"),
	}, nil
}
