package warehouse

// VariationFormat is how the assignment table encodes the variation a user
// was placed into.
type VariationFormat string

const (
	// FormatIndex stores the zero-based variation index directly.
	FormatIndex VariationFormat = "index"
	// FormatKey stores the variation key, resolved against the experiment's
	// declared variation order.
	FormatKey VariationFormat = "key"
)

// Hard-coded column fallbacks. Every settings read bottoms out here, so an
// unset field never propagates as an empty string.
const (
	fallbackUserIDColumn      = "user_id"
	fallbackAnonymousIDColumn = "anonymous_id"
	fallbackTimestampColumn   = "received_at"
	fallbackVariationColumn   = "variation_id"
	fallbackExperimentColumn  = "experiment_id"
	fallbackExperimentsTable  = "experiment_viewed"
	fallbackUsersTable        = "users"
	fallbackPageviewsTable    = "pages"
	fallbackURLColumn         = "path"
	fallbackIdentifiesTable   = "identifies"
)

// SettingsInput is the raw, partial per-source configuration supplied by the
// configuration store. Empty fields inherit defaults at resolve time.
type SettingsInput struct {
	Default struct {
		UserIDColumn      string
		AnonymousIDColumn string
		TimestampColumn   string
	}
	Experiments struct {
		Table              string
		ExperimentIDColumn string
		UserIDColumn       string
		AnonymousIDColumn  string
		TimestampColumn    string
		VariationColumn    string
		VariationFormat    VariationFormat
	}
	Users struct {
		Table        string
		UserIDColumn string
	}
	Pageviews struct {
		Table             string
		URLColumn         string
		UserIDColumn      string
		AnonymousIDColumn string
		TimestampColumn   string
	}
	Identifies struct {
		Table             string
		UserIDColumn      string
		AnonymousIDColumn string
	}
}

// DefaultColumns are the global identifier/timestamp columns applied to any
// table without a more specific setting, metric source tables included.
type DefaultColumns struct {
	UserIDColumn      string
	AnonymousIDColumn string
	TimestampColumn   string
}

// ExperimentsTable locates assignment events.
type ExperimentsTable struct {
	Table              string
	ExperimentIDColumn string
	UserIDColumn       string
	AnonymousIDColumn  string
	TimestampColumn    string
	VariationColumn    string
	VariationFormat    VariationFormat
}

// UsersTable locates the user table.
type UsersTable struct {
	Table        string
	UserIDColumn string
}

// PageviewsTable locates pageview events.
type PageviewsTable struct {
	Table             string
	URLColumn         string
	UserIDColumn      string
	AnonymousIDColumn string
	TimestampColumn   string
}

// IdentifiesTable locates the user-id/anonymous-id bridge.
type IdentifiesTable struct {
	Table             string
	UserIDColumn      string
	AnonymousIDColumn string
}

// SourceSettings is the fully resolved per-source configuration. It is built
// once per data-source connection by ResolveSettings, is read-only afterwards,
// and is safe to share across concurrent calls.
type SourceSettings struct {
	Default     DefaultColumns
	Experiments ExperimentsTable
	Users       UsersTable
	Pageviews   PageviewsTable
	Identifies  IdentifiesTable
}

// pick returns the first non-empty value.
func pick(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveSettings merges raw onto the built-in defaults, one merge per logical
// table section. The merge happens exactly once; callers read resolved fields
// directly and never see an empty column name.
func ResolveSettings(raw SettingsInput) *SourceSettings {
	def := DefaultColumns{
		UserIDColumn:      pick(raw.Default.UserIDColumn, fallbackUserIDColumn),
		AnonymousIDColumn: pick(raw.Default.AnonymousIDColumn, fallbackAnonymousIDColumn),
		TimestampColumn:   pick(raw.Default.TimestampColumn, fallbackTimestampColumn),
	}

	format := raw.Experiments.VariationFormat
	if format != FormatKey {
		format = FormatIndex
	}

	return &SourceSettings{
		Default: def,
		Experiments: ExperimentsTable{
			Table:              pick(raw.Experiments.Table, fallbackExperimentsTable),
			ExperimentIDColumn: pick(raw.Experiments.ExperimentIDColumn, fallbackExperimentColumn),
			UserIDColumn:       pick(raw.Experiments.UserIDColumn, def.UserIDColumn),
			AnonymousIDColumn:  pick(raw.Experiments.AnonymousIDColumn, def.AnonymousIDColumn),
			TimestampColumn:    pick(raw.Experiments.TimestampColumn, def.TimestampColumn),
			VariationColumn:    pick(raw.Experiments.VariationColumn, fallbackVariationColumn),
			VariationFormat:    format,
		},
		Users: UsersTable{
			Table:        pick(raw.Users.Table, fallbackUsersTable),
			UserIDColumn: pick(raw.Users.UserIDColumn, def.UserIDColumn),
		},
		Pageviews: PageviewsTable{
			Table:             pick(raw.Pageviews.Table, fallbackPageviewsTable),
			URLColumn:         pick(raw.Pageviews.URLColumn, fallbackURLColumn),
			UserIDColumn:      pick(raw.Pageviews.UserIDColumn, def.UserIDColumn),
			AnonymousIDColumn: pick(raw.Pageviews.AnonymousIDColumn, def.AnonymousIDColumn),
			TimestampColumn:   pick(raw.Pageviews.TimestampColumn, def.TimestampColumn),
		},
		Identifies: IdentifiesTable{
			Table:             pick(raw.Identifies.Table, fallbackIdentifiesTable),
			UserIDColumn:      pick(raw.Identifies.UserIDColumn, def.UserIDColumn),
			AnonymousIDColumn: pick(raw.Identifies.AnonymousIDColumn, def.AnonymousIDColumn),
		},
	}
}

// MetricUserIDColumn returns the identifier column for a metric's source
// table in the given identifier space. Precedence: per-metric override, then
// the resolved global default.
func (s *SourceSettings) MetricUserIDColumn(m *Metric, idType IDType) string {
	if idType == IDTypeAnonymous {
		if m.Columns != nil && m.Columns.AnonymousID != "" {
			return m.Columns.AnonymousID
		}
		return s.Default.AnonymousIDColumn
	}
	if m.Columns != nil && m.Columns.UserID != "" {
		return m.Columns.UserID
	}
	return s.Default.UserIDColumn
}

// MetricTimestampColumn returns the timestamp column for a metric's source
// table, honoring the per-metric override.
func (s *SourceSettings) MetricTimestampColumn(m *Metric) string {
	if m.Columns != nil && m.Columns.Timestamp != "" {
		return m.Columns.Timestamp
	}
	return s.Default.TimestampColumn
}
