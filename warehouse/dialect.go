package warehouse

import "time"

// Dialect supplies the primitive SQL fragments that differ between warehouse
// flavors. Every method is a pure string builder; implementations must be
// semantically interchangeable for the same logical inputs.
type Dialect interface {
	// Flavor returns the warehouse flavor name ("postgres", "clickhouse", ...).
	Flavor() string

	// Timestamp renders t as a dialect-appropriate timestamp literal.
	Timestamp(t time.Time) string

	// AddHours adds an hour interval to a timestamp expression. Negative
	// hours subtract.
	AddHours(col string, hours int) string

	// SubtractMinutes subtracts a minute interval from a timestamp expression.
	SubtractMinutes(col string, minutes int) string

	// RegexMatch builds a boolean predicate matching col against pattern.
	RegexMatch(col, pattern string) string

	// DateTrunc truncates a timestamp expression to the day.
	DateTrunc(col string) string

	// DateDiff returns the whole-day difference end - start.
	DateDiff(startCol, endCol string) string

	// Percentile builds an expression for the given percentile fraction
	// (0 < fraction < 1) of col.
	Percentile(col string, fraction float64) string

	// QualifyTable maps a logical table name to its fully qualified form.
	QualifyTable(name string) string
}

// timestampFormat is the wire format shared by every flavor's literal syntax.
const timestampFormat = "2006-01-02 15:04:05"

// sessionPadMinutes is how far before an event its session is assumed to have
// started. Used for metrics flagged earlyStart, which can fire slightly
// before the assignment event is recorded.
const sessionPadMinutes = 30

// defaultConversionWindowHours applies when an experiment does not carry its
// own conversion window.
const defaultConversionWindowHours = 72
