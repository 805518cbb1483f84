package warehouse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Row values arrive as opaque text. Numeric fields default to 0 when they
// fail to parse; a malformed row never fails the whole result.

func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// Some drivers render integral counts as floats.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

var dateFormats = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var percentileColRe = regexp.MustCompile(`^p(\d+)$`)

// ParseUsersRows converts the rows of a users query. A populated date column
// routes the row to the time series; otherwise it is the overall summary.
func ParseUsersRows(rows []Row) *UsersResult {
	result := &UsersResult{}
	for _, row := range rows {
		if date := row["date"]; date != "" {
			result.Dates = append(result.Dates, UsersDatePoint{
				Date:  date,
				Users: parseInt(row["users"]),
			})
			continue
		}
		result.Users = parseInt(row["users"])
	}
	return result
}

// ParseMetricValueRows converts the rows of a freestanding metric value
// query. Percentile columns are recognized by the p<int> naming convention.
func ParseMetricValueRows(rows []Row) *MetricValueResult {
	result := &MetricValueResult{}
	for _, row := range rows {
		if date := row["date"]; date != "" {
			result.Dates = append(result.Dates, MetricDatePoint{
				Date:   date,
				Count:  parseInt(row["count"]),
				Mean:   parseFloat(row["mean"]),
				Stddev: parseFloat(row["stddev"]),
			})
			continue
		}
		result.Count = parseInt(row["count"])
		result.Mean = parseFloat(row["mean"])
		result.Stddev = parseFloat(row["stddev"])
		for col, val := range row {
			match := percentileColRe.FindStringSubmatch(col)
			if match == nil {
				continue
			}
			pct, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			if result.Percentiles == nil {
				result.Percentiles = map[int]float64{}
			}
			result.Percentiles[pct] = parseFloat(val)
		}
	}
	return result
}

// AssignmentDay is one (experiment, variation, day) bucket of assignment
// events, the raw input to past-experiment discovery.
type AssignmentDay struct {
	TrackingKey string
	VariationID string
	Date        time.Time
	Users       int64
}

// ParseAssignmentDays converts the rows of a past-experiments query.
func ParseAssignmentDays(rows []Row) []AssignmentDay {
	var out []AssignmentDay
	for _, row := range rows {
		out = append(out, AssignmentDay{
			TrackingKey: row["experiment_id"],
			VariationID: row["variation_id"],
			Date:        parseDate(row["date"]),
			Users:       parseInt(row["users"]),
		})
	}
	return out
}

// VariationResolver maps the assignment table's variation strings to the
// experiment's zero-based variation indexes.
type VariationResolver struct {
	format VariationFormat
	keys   map[string]int
	count  int
}

// NewVariationResolver builds a resolver for the experiment's declared
// variation order under the source's configured format.
func NewVariationResolver(exp *Experiment, format VariationFormat) *VariationResolver {
	r := &VariationResolver{
		format: format,
		keys:   make(map[string]int, len(exp.Variations)),
		count:  len(exp.Variations),
	}
	for idx, key := range exp.Variations {
		r.keys[key] = idx
	}
	return r
}

// Resolve returns the variation index for a raw variation value. A value
// that does not resolve to an index in [0, variationCount) is reported as
// not ok; rows carrying one are dropped by the callers, never fatal.
func (r *VariationResolver) Resolve(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	var idx int
	if r.format == FormatKey {
		found := false
		idx, found = r.keys[raw]
		if !found {
			return 0, false
		}
	} else {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, false
		}
		idx = n
	}
	if idx < 0 || idx >= r.count {
		return 0, false
	}
	return idx, true
}

// ExperimentUsersRow is one parsed bucket of an experiment users query.
type ExperimentUsersRow struct {
	Dimension string
	Variation int
	Users     int64
}

// ParseExperimentUsersRows converts experiment users rows, dropping rows
// whose variation cannot be resolved.
func ParseExperimentUsersRows(rows []Row, resolver *VariationResolver) []ExperimentUsersRow {
	var out []ExperimentUsersRow
	for _, row := range rows {
		idx, ok := resolver.Resolve(row["variation"])
		if !ok {
			slog.Warn("dropping row with unresolved variation", "variation", row["variation"])
			continue
		}
		out = append(out, ExperimentUsersRow{
			Dimension: row["dimension"],
			Variation: idx,
			Users:     parseInt(row["users"]),
		})
	}
	return out
}

// ExperimentMetricRow is one parsed bucket of an experiment metric query.
type ExperimentMetricRow struct {
	Dimension string
	Variation int
	Count     int64
	Mean      float64
	Stddev    float64
}

// ParseExperimentMetricRows converts experiment metric rows, dropping rows
// whose variation cannot be resolved.
func ParseExperimentMetricRows(rows []Row, resolver *VariationResolver) []ExperimentMetricRow {
	var out []ExperimentMetricRow
	for _, row := range rows {
		idx, ok := resolver.Resolve(row["variation"])
		if !ok {
			slog.Warn("dropping row with unresolved variation", "variation", row["variation"])
			continue
		}
		out = append(out, ExperimentMetricRow{
			Dimension: row["dimension"],
			Variation: idx,
			Count:     parseInt(row["count"]),
			Mean:      parseFloat(row["mean"]),
			Stddev:    parseFloat(row["stddev"]),
		})
	}
	return out
}
