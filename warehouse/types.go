// Package warehouse compiles experiment analytics into dialect-specific SQL,
// runs it through an injected query runner, and parses the string-typed rows
// back into typed statistical summaries.
package warehouse

import "time"

// IDType is the identifier space a table or definition is tracked by.
type IDType string

const (
	IDTypeUser      IDType = "user"
	IDTypeAnonymous IDType = "anonymous"
)

// MetricType determines how raw event values are aggregated per user.
type MetricType string

const (
	MetricBinomial MetricType = "binomial"
	MetricCount    MetricType = "count"
	MetricDuration MetricType = "duration"
	MetricRevenue  MetricType = "revenue"
)

// MetricCondition is a single WHERE predicate on the metric's source table.
type MetricCondition struct {
	Column   string
	Operator string
	Value    string
}

// MetricColumns are optional per-metric identifier/timestamp column overrides.
type MetricColumns struct {
	UserID      string
	AnonymousID string
	Timestamp   string
}

// Metric describes a conversion metric tracked in the warehouse.
type Metric struct {
	ID   string
	Name string
	Type MetricType

	// Table is the source table holding the metric's events.
	Table string
	// Column is the value expression. It may embed the {{alias}} placeholder,
	// substituted with the row alias at composition time.
	Column     string
	Conditions []MetricCondition

	UserIDType IDType
	Columns    *MetricColumns

	// Cap clamps the per-user aggregate. 0 means uncapped.
	Cap float64
	// ConversionDelayHours shifts the start of the conversion window.
	ConversionDelayHours int
	// ConversionWindowHours is how long after assignment a conversion counts.
	ConversionWindowHours int
	// EarlyStart measures the window from session start (30 minutes before
	// the event) instead of the exact assignment timestamp.
	EarlyStart bool
	// IgnoreNulls affects denominator semantics downstream. Surfaced to the
	// caller unmodified, never consulted here.
	IgnoreNulls bool
}

// Phase is one date range of an experiment.
type Phase struct {
	DateStarted time.Time
	// DateEnded is zero while the phase is still running; queries must not
	// upper-bound the time range in that case.
	DateEnded time.Time
}

// Experiment describes an experiment as tracked in the warehouse.
type Experiment struct {
	// TrackingKey is the stable external identifier recorded with each
	// assignment event, distinct from any internal id.
	TrackingKey string
	UserIDType  IDType
	Variations  []string
	Phases      []Phase

	ConversionWindowHours int

	// QueryOverrides maps a metric id (or the literal key "users") to raw SQL
	// used verbatim in place of the composed query, after placeholder
	// substitution.
	QueryOverrides map[string]string
}

// Dimension splits results by a per-user categorical value. SQL must yield
// exactly two logical columns: the identifier and the value.
type Dimension struct {
	Name       string
	UserIDType IDType
	SQL        string
}

// Segment restricts analysis to users matching an eligibility predicate as of
// a date. SQL must yield the identifier and the eligibility date.
type Segment struct {
	Name       string
	UserIDType IDType
	SQL        string
}

// UsersResult is the output of a users query.
type UsersResult struct {
	Users int64
	Dates []UsersDatePoint
}

// UsersDatePoint is one day of a users time series.
type UsersDatePoint struct {
	Date  string
	Users int64
}

// MetricValueResult summarizes a metric's distribution.
type MetricValueResult struct {
	Count  int64
	Mean   float64
	Stddev float64
	// Percentiles is keyed by integer percentile (1, 5, ... 99). Empty for
	// binomial metrics.
	Percentiles map[int]float64
	Dates       []MetricDatePoint
}

// MetricDatePoint is one day of a metric time series.
type MetricDatePoint struct {
	Date   string
	Count  int64
	Mean   float64
	Stddev float64
}

// PastExperiment is one discovered historical experiment variation.
type PastExperiment struct {
	TrackingKey string
	VariationID string
	Users       int64
	StartDate   time.Time
	EndDate     time.Time
}

// MetricStats is a per-metric summary inside one variation bucket.
type MetricStats struct {
	MetricID string
	Count    int64
	Mean     float64
	Stddev   float64
}

// VariationResult is one variation's bucket inside a dimension slice.
type VariationResult struct {
	Variation int
	Users     int64
	Metrics   []MetricStats
}

// DimensionResult holds the per-variation buckets for one dimension value.
type DimensionResult struct {
	Dimension  string
	Variations []VariationResult
}

// ExperimentResults is the merged output of one analysis run, plus the exact
// composed SQL for audit.
type ExperimentResults struct {
	Dimensions []DimensionResult
	Query      string
}

// ImpactEstimate projects daily traffic and metric value for a hypothetical
// experiment targeting a URL pattern.
type ImpactEstimate struct {
	// Users is estimated daily distinct visitors matching the URL filter.
	Users float64
	// Value is the estimated daily metric value among those visitors.
	Value float64
	// MetricTotal is the estimated daily site-wide metric value.
	MetricTotal float64
	Query       string
}
