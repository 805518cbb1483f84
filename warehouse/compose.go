package warehouse

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Composer assembles dialect-specific query text from experiment and metric
// configuration. Composition is synchronous, pure, and side-effect-free; the
// returned text is handed to a QueryRunner by the caller.
type Composer struct {
	Settings *SourceSettings
	Dialect  Dialect
}

// NewComposer creates a composer bound to one resolved source configuration
// and one warehouse flavor.
func NewComposer(settings *SourceSettings, dialect Dialect) *Composer {
	return &Composer{Settings: settings, Dialect: dialect}
}

// percentileLadder is the fixed set of percentiles reported by freestanding
// metric value queries.
var percentileLadder = []int{1, 5, 10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 99}

// Raw-override and value-column placeholders. Whitespace inside the braces is
// tolerated.
var (
	dateStartRe     = regexp.MustCompile(`\{\{\s*dateStart\s*\}\}`)
	dateEndRe       = regexp.MustCompile(`\{\{\s*dateEnd\s*\}\}`)
	experimentKeyRe = regexp.MustCompile(`\{\{\s*experimentKey\s*\}\}`)
	aliasRe         = regexp.MustCompile(`\{\{\s*alias\s*\}\}`)
)

// UsersQueryParams configures a distinct-visitors query.
type UsersQueryParams struct {
	Name          string
	URLRegex      string
	From          time.Time
	To            time.Time
	IncludeByDate bool
	UserIDType    IDType
	Segment       *Segment
}

// MetricValueQueryParams configures a freestanding metric summary query.
type MetricValueQueryParams struct {
	Metric        *Metric
	From          time.Time
	To            time.Time
	IncludeByDate bool
	UserIDType    IDType
	// URLRegex, when set, restricts the population to identifiers with a
	// matching pageview inside the date range.
	URLRegex string
	Segment  *Segment
}

// ExperimentQueryParams configures the per-experiment queries. Metric is nil
// for the users query.
type ExperimentQueryParams struct {
	Experiment *Experiment
	Phase      *Phase
	Metric     *Metric
	Activation *Metric
	Dimension  *Dimension
}

// UsersQuery counts distinct identifiers with a pageview matching the URL
// filter, optionally per day, optionally restricted to a segment.
func (c *Composer) UsersQuery(p *UsersQueryParams) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("-- %s - number of users\nWITH\n", p.Name))
	b.WriteString("  __pageVisits AS (\n")
	b.WriteString(indent(c.pageVisits(p.URLRegex, p.From, p.To, p.IncludeByDate, p.UserIDType), 4))
	b.WriteString("\n  )")
	if p.Segment != nil {
		b.WriteString(",\n  __segment AS (\n")
		b.WriteString(indent(c.segmentMembers(p.Segment, p.UserIDType), 4))
		b.WriteString("\n  )")
	}
	b.WriteString("\n")

	segJoin := ""
	segWhere := ""
	if p.Segment != nil {
		segJoin = "\nJOIN __segment s ON (s.user_id = u.user_id)"
		segWhere = "\nWHERE s.date <= u.actual_start"
	}

	if p.IncludeByDate {
		b.WriteString("SELECT\n  null AS date,\n  COUNT(DISTINCT u.user_id) AS users\nFROM __pageVisits u")
		b.WriteString(segJoin)
		b.WriteString(segWhere)
		b.WriteString("\nUNION ALL\nSELECT\n  u.date AS date,\n  COUNT(DISTINCT u.user_id) AS users\nFROM __pageVisits u")
		b.WriteString(segJoin)
		b.WriteString(segWhere)
		b.WriteString("\nGROUP BY u.date")
	} else {
		b.WriteString("SELECT COUNT(DISTINCT u.user_id) AS users\nFROM __pageVisits u")
		b.WriteString(segJoin)
		b.WriteString(segWhere)
	}
	return b.String()
}

// MetricValueQuery summarizes a metric's per-user distribution: count, mean,
// standard deviation, the fixed percentile ladder (non-binomial only), and an
// optional per-day series.
func (c *Composer) MetricValueQuery(p *MetricValueQueryParams) string {
	m := p.Metric
	var b strings.Builder
	b.WriteString(fmt.Sprintf("-- %s (%s) - metric value\nWITH\n", m.Name, m.Type))

	var ctes []string
	if p.URLRegex != "" {
		ctes = append(ctes, "  __pageVisits AS (\n"+indent(c.pageVisits(p.URLRegex, p.From, p.To, false, p.UserIDType), 4)+"\n  )")
	}
	if p.Segment != nil {
		ctes = append(ctes, "  __segment AS (\n"+indent(c.segmentMembers(p.Segment, p.UserIDType), 4)+"\n  )")
	}
	ctes = append(ctes, "  __metric AS (\n"+indent(c.metricRows(m, p.UserIDType, p.From, p.To), 4)+"\n  )")

	joins := ""
	where := ""
	if p.URLRegex != "" {
		joins += "\nJOIN __pageVisits v ON (v.user_id = m.user_id)"
	}
	if p.Segment != nil {
		joins += "\nJOIN __segment s ON (s.user_id = m.user_id)"
		where = "\nWHERE s.date <= m.actual_start"
	}

	ctes = append(ctes, fmt.Sprintf("  __userMetric AS (\n    -- one value per user\n    SELECT\n      m.user_id AS user_id,\n      %s AS value\n    FROM __metric m%s%s\n    GROUP BY m.user_id\n  )",
		c.userAggregate(m, "m"), indent(joins, 4), indent(where, 4)))
	if p.IncludeByDate {
		ctes = append(ctes, fmt.Sprintf("  __userMetricDates AS (\n    -- one value per user per day\n    SELECT\n      %s AS date,\n      m.user_id AS user_id,\n      %s AS value\n    FROM __metric m%s%s\n    GROUP BY %s, m.user_id\n  )",
			c.Dialect.DateTrunc("m.actual_start"), c.userAggregate(m, "m"),
			indent(joins, 4), indent(where, 4),
			c.Dialect.DateTrunc("m.actual_start")))
	}

	b.WriteString(strings.Join(ctes, ",\n"))
	b.WriteString("\n")

	withPercentiles := m.Type != MetricBinomial
	cols := []string{"COUNT(*) AS count", "AVG(d.value) AS mean", "STDDEV_SAMP(d.value) AS stddev"}
	if withPercentiles {
		for _, pct := range percentileLadder {
			cols = append(cols, fmt.Sprintf("%s AS p%d", c.Dialect.Percentile("d.value", float64(pct)/100), pct))
		}
	}

	if p.IncludeByDate {
		b.WriteString("SELECT\n  null AS date,\n  " + strings.Join(cols, ",\n  "))
		b.WriteString("\nFROM __userMetric d")
		dateCols := []string{"d.date AS date", "COUNT(*) AS count", "AVG(d.value) AS mean", "STDDEV_SAMP(d.value) AS stddev"}
		if withPercentiles {
			for _, pct := range percentileLadder {
				dateCols = append(dateCols, fmt.Sprintf("0 AS p%d", pct))
			}
		}
		b.WriteString("\nUNION ALL\nSELECT\n  " + strings.Join(dateCols, ",\n  "))
		b.WriteString("\nFROM __userMetricDates d\nGROUP BY d.date")
	} else {
		b.WriteString("SELECT\n  " + strings.Join(cols, ",\n  "))
		b.WriteString("\nFROM __userMetric d")
	}
	return b.String()
}

// ExperimentUsersQuery counts distinct assigned users per variation and
// dimension value.
func (c *Composer) ExperimentUsersQuery(p *ExperimentQueryParams) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("-- experiment %s - users\nWITH\n", p.Experiment.TrackingKey))
	b.WriteString(strings.Join(c.experimentCTEs(p, "users"), ",\n"))
	b.WriteString("\n")
	b.WriteString("SELECT\n  d.dimension AS dimension,\n  d.variation AS variation,\n  COUNT(DISTINCT d.user_id) AS users\n")
	b.WriteString("FROM (\n")
	b.WriteString(indent(c.assignedUsers(p), 2))
	b.WriteString("\n) d\nGROUP BY d.dimension, d.variation")
	return b.String()
}

// ExperimentMetricQuery aggregates one metric per variation and dimension
// value: per-user aggregation first (capped), then per-bucket count, mean,
// and standard deviation.
func (c *Composer) ExperimentMetricQuery(p *ExperimentQueryParams) string {
	m := p.Metric
	var b strings.Builder
	b.WriteString(fmt.Sprintf("-- experiment %s - metric %s\nWITH\n", p.Experiment.TrackingKey, m.Name))
	ctes := c.experimentCTEs(p, m.ID)
	ctes = append(ctes, "  __metric AS (\n"+indent(c.metricRows(m, p.Experiment.UserIDType, time.Time{}, time.Time{}), 4)+"\n  )")

	winStart := "u.actual_start"
	if m.EarlyStart {
		winStart = "u.session_start"
	}
	winEnd := "u.conversion_end"
	if m.ConversionDelayHours != 0 {
		winStart = c.Dialect.AddHours(winStart, m.ConversionDelayHours)
		winEnd = c.Dialect.AddHours(winEnd, m.ConversionDelayHours)
	}

	ctes = append(ctes, fmt.Sprintf("  __userMetric AS (\n    -- one value per assigned user\n    SELECT\n      u.user_id AS user_id,\n      u.variation AS variation,\n      u.dimension AS dimension,\n      %s AS value\n    FROM (\n%s\n    ) u\n    JOIN __metric m ON (m.user_id = u.user_id)\n    WHERE\n      m.actual_start >= %s\n      AND m.actual_start <= %s\n    GROUP BY u.user_id, u.variation, u.dimension\n  )",
		c.userAggregate(m, "m"), indent(c.assignedUsers(p), 6), winStart, winEnd))

	b.WriteString(strings.Join(ctes, ",\n"))
	b.WriteString("\n")
	b.WriteString("SELECT\n  d.variation AS variation,\n  d.dimension AS dimension,\n  COUNT(*) AS count,\n  AVG(d.value) AS mean,\n  STDDEV_SAMP(d.value) AS stddev\nFROM __userMetric d\nGROUP BY d.variation, d.dimension")
	return b.String()
}

// PastExperimentsQuery groups assignment events by experiment, variation, and
// day since from. The noise-rejection heuristics run on the returned rows,
// not in SQL.
func (c *Composer) PastExperimentsQuery(from time.Time) string {
	exp := c.Settings.Experiments
	d := c.Dialect
	day := d.DateTrunc("e." + exp.TimestampColumn)
	return fmt.Sprintf(
		"-- past experiments\nSELECT\n  e.%s AS experiment_id,\n  e.%s AS variation_id,\n  %s AS date,\n  COUNT(DISTINCT e.%s) AS users\nFROM %s e\nWHERE e.%s > %s\nGROUP BY e.%s, e.%s, %s",
		exp.ExperimentIDColumn,
		exp.VariationColumn,
		day,
		exp.UserIDColumn,
		d.QualifyTable(exp.Table),
		exp.TimestampColumn,
		d.Timestamp(from),
		exp.ExperimentIDColumn,
		exp.VariationColumn,
		day,
	)
}

// pageVisits selects the first matching pageview per identifier (and per day
// when byDate is set) within the date range.
func (c *Composer) pageVisits(urlRegex string, from, to time.Time, byDate bool, idType IDType) string {
	pv := c.Settings.Pageviews
	d := c.Dialect

	nativeCol := pv.AnonymousIDColumn
	native := IDTypeAnonymous
	if idType == IDTypeUser {
		// Pageviews carry both identifier columns; no bridge needed.
		nativeCol = pv.UserIDColumn
		native = IDTypeUser
	}
	col, _ := bridgeIdentity(c.Settings, d, idType, native, "p", nativeCol)

	ts := "p." + pv.TimestampColumn
	var where []string
	if urlRegex != "" && urlRegex != ".*" {
		where = append(where, d.RegexMatch("p."+pv.URLColumn, urlRegex))
	}
	where = append(where, fmt.Sprintf("%s >= %s", ts, d.Timestamp(from)))
	where = append(where, fmt.Sprintf("%s <= %s", ts, d.Timestamp(to)))

	cols := []string{col + " AS user_id", fmt.Sprintf("MIN(%s) AS actual_start", ts)}
	groupBy := []string{col}
	if byDate {
		cols = append(cols, d.DateTrunc(ts)+" AS date")
		groupBy = append(groupBy, d.DateTrunc(ts))
	}

	return fmt.Sprintf("-- first page visits\nSELECT\n  %s\nFROM %s p\nWHERE\n  %s\nGROUP BY %s",
		strings.Join(cols, ",\n  "),
		d.QualifyTable(pv.Table),
		strings.Join(where, "\n  AND "),
		strings.Join(groupBy, ", "))
}

// segmentMembers wraps a caller-supplied segment fragment, bridging its
// native identifier space to the requested one. The fragment must yield
// columns named user_id and date.
func (c *Composer) segmentMembers(seg *Segment, idType IDType) string {
	col, join := bridgeIdentity(c.Settings, c.Dialect, idType, seg.UserIDType, "s", "user_id")
	q := fmt.Sprintf("-- segment: %s\nSELECT\n  %s AS user_id,\n  s.date AS date\nFROM (\n%s\n) s", seg.Name, col, indent(seg.SQL, 2))
	if join != "" {
		q += "\n" + join
	}
	return q
}

// dimensionValues wraps a caller-supplied dimension fragment the same way.
// The fragment must yield columns named user_id and value.
func (c *Composer) dimensionValues(dim *Dimension, idType IDType) string {
	col, join := bridgeIdentity(c.Settings, c.Dialect, idType, dim.UserIDType, "d", "user_id")
	q := fmt.Sprintf("-- dimension: %s\nSELECT\n  %s AS user_id,\n  d.value AS value\nFROM (\n%s\n) d", dim.Name, col, indent(dim.SQL, 2))
	if join != "" {
		q += "\n" + join
	}
	return q
}

// metricRows selects each qualifying metric event with its value, actual
// timestamp, conversion end, and session start. A zero from/to skips the date
// filter (the experiment join bounds the range instead).
func (c *Composer) metricRows(m *Metric, idType IDType, from, to time.Time) string {
	d := c.Dialect
	col, join := bridgeIdentity(c.Settings, d, idType, m.UserIDType, "m", c.Settings.MetricUserIDColumn(m, m.UserIDType))
	ts := "m." + c.Settings.MetricTimestampColumn(m)

	window := m.ConversionWindowHours
	if window <= 0 {
		window = defaultConversionWindowHours
	}

	cols := []string{
		col + " AS user_id",
		c.metricValue(m, "m") + " AS value",
		ts + " AS actual_start",
		d.AddHours(ts, m.ConversionDelayHours+window) + " AS conversion_end",
		d.SubtractMinutes(ts, sessionPadMinutes) + " AS session_start",
	}

	var where []string
	for _, cond := range m.Conditions {
		where = append(where, fmt.Sprintf("m.%s %s '%s'", cond.Column, cond.Operator, cond.Value))
	}
	if !from.IsZero() {
		where = append(where, fmt.Sprintf("%s >= %s", ts, d.Timestamp(from)))
	}
	if !to.IsZero() {
		where = append(where, fmt.Sprintf("%s <= %s", ts, d.Timestamp(to)))
	}

	q := fmt.Sprintf("-- metric: %s\nSELECT\n  %s\nFROM %s m", m.Name, strings.Join(cols, ",\n  "), d.QualifyTable(m.Table))
	if join != "" {
		q += "\n" + join
	}
	if len(where) > 0 {
		q += "\nWHERE\n  " + strings.Join(where, "\n  AND ")
	}
	return q
}

// experimentAssignments selects one row per assignment event for the
// experiment's tracking key within the phase. An open phase leaves the range
// unbounded above. A raw override for overrideKey replaces the composed text
// verbatim after placeholder substitution.
func (c *Composer) experimentAssignments(p *ExperimentQueryParams, overrideKey string) string {
	exp := p.Experiment
	phase := p.Phase
	if raw, ok := exp.QueryOverrides[overrideKey]; ok {
		return c.substituteOverride(raw, exp, phase)
	}

	es := c.Settings.Experiments
	d := c.Dialect

	nativeCol := es.AnonymousIDColumn
	if exp.UserIDType == IDTypeUser {
		nativeCol = es.UserIDColumn
	}
	// Assignment tables carry both identifier columns, so the experiment's
	// own space reads directly; bridging happens on metric and dimension
	// tables instead.
	col := "e." + nativeCol

	ts := "e." + es.TimestampColumn
	window := exp.ConversionWindowHours
	if window <= 0 {
		window = defaultConversionWindowHours
	}

	where := []string{
		fmt.Sprintf("e.%s = '%s'", es.ExperimentIDColumn, exp.TrackingKey),
		fmt.Sprintf("%s >= %s", ts, d.Timestamp(phase.DateStarted)),
	}
	if !phase.DateEnded.IsZero() {
		where = append(where, fmt.Sprintf("%s <= %s", ts, d.Timestamp(phase.DateEnded)))
	}

	return fmt.Sprintf("-- assignments: %s\nSELECT\n  %s AS user_id,\n  e.%s AS variation,\n  %s AS actual_start,\n  %s AS conversion_end,\n  %s AS session_start\nFROM %s e\nWHERE\n  %s",
		exp.TrackingKey,
		col,
		es.VariationColumn,
		ts,
		d.AddHours(ts, window),
		d.SubtractMinutes(ts, sessionPadMinutes),
		d.QualifyTable(es.Table),
		strings.Join(where, "\n  AND "))
}

// substituteOverride replaces the placeholder tokens in a raw query override.
// dateEnd defaults to now while the phase is open.
func (c *Composer) substituteOverride(raw string, exp *Experiment, phase *Phase) string {
	end := phase.DateEnded
	if end.IsZero() {
		end = time.Now()
	}
	out := dateStartRe.ReplaceAllString(raw, phase.DateStarted.Format(timestampFormat))
	out = dateEndRe.ReplaceAllString(out, end.Format(timestampFormat))
	return experimentKeyRe.ReplaceAllString(out, exp.TrackingKey)
}

// experimentCTEs builds the shared derived tables for the per-experiment
// queries: assignments, optional activation re-anchoring, optional dimension.
func (c *Composer) experimentCTEs(p *ExperimentQueryParams, overrideKey string) []string {
	ctes := []string{
		"  __experiment AS (\n" + indent(c.experimentAssignments(p, overrideKey), 4) + "\n  )",
	}
	if p.Activation != nil {
		ctes = append(ctes,
			"  __activationMetric AS (\n"+indent(c.metricRows(p.Activation, p.Experiment.UserIDType, time.Time{}, time.Time{}), 4)+"\n  )",
			`  __activated AS (
    -- assignments re-anchored to the first activation event
    SELECT
      u.user_id AS user_id,
      u.variation AS variation,
      MIN(a.actual_start) AS actual_start,
      MIN(a.conversion_end) AS conversion_end,
      MIN(a.session_start) AS session_start
    FROM __experiment u
    JOIN __activationMetric a ON (a.user_id = u.user_id)
    WHERE
      a.actual_start >= u.actual_start
      AND a.actual_start <= u.conversion_end
    GROUP BY u.user_id, u.variation
  )`)
	}
	if p.Dimension != nil {
		ctes = append(ctes, "  __dimension AS (\n"+indent(c.dimensionValues(p.Dimension, p.Experiment.UserIDType), 4)+"\n  )")
	}
	return ctes
}

// assignedUsers is the shared inner select joining assignments (activated or
// not) with the dimension.
func (c *Composer) assignedUsers(p *ExperimentQueryParams) string {
	src := "__experiment"
	if p.Activation != nil {
		src = "__activated"
	}
	dimCol := "''"
	dimJoin := ""
	if p.Dimension != nil {
		dimCol = "dim.value"
		dimJoin = "\nJOIN __dimension dim ON (dim.user_id = u.user_id)"
	}
	return fmt.Sprintf("SELECT\n  u.user_id AS user_id,\n  u.variation AS variation,\n  u.actual_start AS actual_start,\n  u.session_start AS session_start,\n  u.conversion_end AS conversion_end,\n  %s AS dimension\nFROM %s u%s", dimCol, src, dimJoin)
}

// metricValue is the per-event raw value expression for a metric, with the
// row-alias placeholder substituted.
func (c *Composer) metricValue(m *Metric, alias string) string {
	col := aliasRe.ReplaceAllString(m.Column, alias)
	switch m.Type {
	case MetricBinomial:
		return "1"
	case MetricCount:
		if col == "" {
			return "1"
		}
		return col
	default:
		return col
	}
}

// userAggregate is the per-user aggregate expression for a metric, clamped at
// the metric's cap.
func (c *Composer) userAggregate(m *Metric, alias string) string {
	var agg string
	switch m.Type {
	case MetricBinomial:
		// Presence counts as one conversion; no cap applies.
		return fmt.Sprintf("MAX(%s.value)", alias)
	case MetricCount:
		if m.Column == "" {
			agg = "COUNT(*)"
		} else {
			agg = fmt.Sprintf("COUNT(DISTINCT %s.value)", alias)
		}
	default:
		agg = fmt.Sprintf("MAX(%s.value)", alias)
	}
	if m.Cap > 0 {
		return fmt.Sprintf("LEAST(%s, %s)", formatFloat(m.Cap), agg)
	}
	return agg
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}

// indent prefixes every non-empty line of s with n spaces.
func indent(s string, n int) string {
	if s == "" {
		return s
	}
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
