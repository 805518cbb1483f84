package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/splitsense/internal/profile"
	"github.com/hrygo/splitsense/server/analysis"
	"github.com/hrygo/splitsense/warehouse"
	"github.com/hrygo/splitsense/warehouse/db"
)

type metricConfig struct {
	ID                    string
	Name                  string
	Type                  string
	Table                 string
	Column                string
	UserIDType            string
	Cap                   float64
	ConversionWindowHours int
	ConversionDelayHours  int
	EarlyStart            bool
	Conditions            []struct {
		Column   string
		Operator string
		Value    string
	}
}

type experimentConfig struct {
	TrackingKey           string
	UserIDType            string
	Variations            []string
	ConversionWindowHours int
	PhaseStart            string
	PhaseEnd              string
	Metrics               []string
	ActivationMetric      string
	Overrides             map[string]string
}

type fileConfig struct {
	Settings   warehouse.SettingsInput
	Metrics    []metricConfig
	Experiment experimentConfig
	URLRegex   string
}

var (
	instanceProfile profile.Profile
	configPath      string

	rootCmd = &cobra.Command{
		Use:   "splitsense",
		Short: "Experiment analytics query compiler for SQL warehouses",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			instanceProfile.FromEnv()
			if configPath != "" {
				viper.SetConfigFile(configPath)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config: %w", err)
				}
			}
			return instanceProfile.Validate()
		},
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Run a full experiment analysis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			analyzer, cfg, err := buildAnalyzer()
			if err != nil {
				return err
			}
			params, err := experimentParams(cfg)
			if err != nil {
				return err
			}
			results, err := analyzer.ExperimentResults(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}

	impactCmd = &cobra.Command{
		Use:   "impact",
		Short: "Estimate daily traffic and metric value for a URL filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			analyzer, cfg, err := buildAnalyzer()
			if err != nil {
				return err
			}
			if len(cfg.Metrics) == 0 {
				return fmt.Errorf("at least one metric is required")
			}
			estimate, err := analyzer.EstimateImpact(cmd.Context(), &analysis.ImpactParams{
				URLRegex:   cfg.URLRegex,
				Metric:     toMetric(&cfg.Metrics[0]),
				UserIDType: warehouse.IDType(cfg.Metrics[0].UserIDType),
			})
			if err != nil {
				return err
			}
			return printJSON(estimate)
		},
	}

	pastCmd = &cobra.Command{
		Use:   "past",
		Short: "Discover past experiments from assignment events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			analyzer, _, err := buildAnalyzer()
			if err != nil {
				return err
			}
			experiments, _, err := analyzer.PastExperiments(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(experiments)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the datasource config file")
	rootCmd.PersistentFlags().StringVar(&instanceProfile.Flavor, "flavor", "", "warehouse flavor")
	rootCmd.PersistentFlags().StringVar(&instanceProfile.DSN, "dsn", "", "warehouse connection string")
	rootCmd.AddCommand(analyzeCmd, impactCmd, pastCmd)
}

func loadConfig() (*fileConfig, error) {
	cfg := &fileConfig{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func buildAnalyzer() (*analysis.Analyzer, *fileConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dialect, err := db.NewDialect(&instanceProfile)
	if err != nil {
		return nil, nil, err
	}
	runner, err := db.NewRunner(&instanceProfile)
	if err != nil {
		return nil, nil, err
	}
	composer := warehouse.NewComposer(warehouse.ResolveSettings(cfg.Settings), dialect)
	return analysis.New(composer, runner), cfg, nil
}

func toMetric(mc *metricConfig) *warehouse.Metric {
	m := &warehouse.Metric{
		ID:                    mc.ID,
		Name:                  mc.Name,
		Type:                  warehouse.MetricType(mc.Type),
		Table:                 mc.Table,
		Column:                mc.Column,
		UserIDType:            warehouse.IDType(mc.UserIDType),
		Cap:                   mc.Cap,
		ConversionWindowHours: mc.ConversionWindowHours,
		ConversionDelayHours:  mc.ConversionDelayHours,
		EarlyStart:            mc.EarlyStart,
	}
	if m.UserIDType == "" {
		m.UserIDType = warehouse.IDTypeUser
	}
	for _, c := range mc.Conditions {
		m.Conditions = append(m.Conditions, warehouse.MetricCondition{
			Column:   c.Column,
			Operator: c.Operator,
			Value:    c.Value,
		})
	}
	return m
}

func experimentParams(cfg *fileConfig) (*analysis.ExperimentParams, error) {
	ec := cfg.Experiment
	if ec.TrackingKey == "" {
		return nil, fmt.Errorf("experiment.trackingkey is required")
	}
	start, err := time.Parse("2006-01-02", ec.PhaseStart)
	if err != nil {
		return nil, fmt.Errorf("invalid phase start: %w", err)
	}
	phase := &warehouse.Phase{DateStarted: start}
	if ec.PhaseEnd != "" {
		end, err := time.Parse("2006-01-02", ec.PhaseEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid phase end: %w", err)
		}
		phase.DateEnded = end
	}

	idType := warehouse.IDType(ec.UserIDType)
	if idType == "" {
		idType = warehouse.IDTypeUser
	}
	exp := &warehouse.Experiment{
		TrackingKey:           ec.TrackingKey,
		UserIDType:            idType,
		Variations:            ec.Variations,
		Phases:                []warehouse.Phase{*phase},
		ConversionWindowHours: ec.ConversionWindowHours,
		QueryOverrides:        ec.Overrides,
	}

	byID := map[string]*warehouse.Metric{}
	for i := range cfg.Metrics {
		byID[cfg.Metrics[i].ID] = toMetric(&cfg.Metrics[i])
	}
	params := &analysis.ExperimentParams{Experiment: exp, Phase: phase}
	for _, id := range ec.Metrics {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", id)
		}
		params.Metrics = append(params.Metrics, m)
	}
	if ec.ActivationMetric != "" {
		m, ok := byID[ec.ActivationMetric]
		if !ok {
			return nil, fmt.Errorf("unknown activation metric %q", ec.ActivationMetric)
		}
		params.Activation = m
	}
	return params, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
