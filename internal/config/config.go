// Package config loads audit configuration from the environment and YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"gorla/domain/core"
	"gorla/domain/stats"
	"gorla/internal/betting"
	"gorla/internal/errors"
)

// AuditType selects polling or card-level comparison
type AuditType string

const (
	AuditTypePolling AuditType = "polling"
	AuditTypeClca    AuditType = "clca"
)

// AuditConfig is everything an audit needs besides the election data
type AuditConfig struct {
	Type              AuditType `yaml:"type"`
	RiskLimit         float64   `yaml:"risk_limit"`
	Seed              int64     `yaml:"seed"`
	NTrials           int       `yaml:"ntrials"`
	Quantile          float64   `yaml:"quantile"`
	HasStyle          bool      `yaml:"has_style"`
	MaxSamplesAllowed int       `yaml:"max_samples_allowed"` // hard cap on audited cards, 0 for none
	MaxRounds         int       `yaml:"max_rounds"`
	Concurrency       int       `yaml:"concurrency"`
	MinMargin         float64   `yaml:"min_margin"`

	Betting BettingConfig `yaml:"betting"`
	Alpha   AlphaConfig   `yaml:"alpha"`

	ErrorRates     *stats.ErrorRateTable `yaml:"error_rates"`
	ErrorRatesFile string                `yaml:"error_rates_file"`

	Database DatabaseConfig `yaml:"database"`
}

// BettingConfig configures the comparison betting strategy
type BettingConfig struct {
	Strategy     string                  `yaml:"strategy"`
	MaxRisk      float64                 `yaml:"max_risk"`
	FuzzPct      float64                 `yaml:"fuzz_pct"`
	AprioriRates *stats.DiscrepancyRates `yaml:"apriori_rates"`
	PriorWeight  int                     `yaml:"prior_weight"`
	P2           float64                 `yaml:"p2"`
}

// AlphaConfig configures the polling η estimator
type AlphaConfig struct {
	D int     `yaml:"d"`
	F float64 `yaml:"f"`
}

// DatabaseConfig holds the optional round-result store
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Default returns the configuration used when nothing is set
func Default() AuditConfig {
	return AuditConfig{
		Type:        AuditTypeClca,
		RiskLimit:   0.05,
		Seed:        12356789,
		NTrials:     100,
		Quantile:    0.80,
		HasStyle:    true,
		MaxRounds:   7,
		Concurrency: 4,
		Betting: BettingConfig{
			Strategy:    betting.KindGeneralAdaptive.String(),
			MaxRisk:     betting.DefaultMaxRisk,
			PriorWeight: 100,
		},
		Alpha: AlphaConfig{D: 100},
	}
}

// Load reads the defaults, an optional YAML file and then RLA_* environment
// variables, in that order, and validates the result.
func Load(path string) (*AuditConfig, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.ErrorRates == nil && cfg.ErrorRatesFile != "" {
		table, err := LoadErrorRateTable(cfg.ErrorRatesFile)
		if err != nil {
			return nil, err
		}
		cfg.ErrorRates = &table
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

func (c *AuditConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse %s: %w", path, err))
	}
	return nil
}

func (c *AuditConfig) applyEnv() {
	c.Type = AuditType(getEnvOrDefault("RLA_TYPE", string(c.Type)))
	c.RiskLimit = getEnvFloatOrDefault("RLA_RISK_LIMIT", c.RiskLimit)
	c.Seed = getEnvInt64OrDefault("RLA_SEED", c.Seed)
	c.NTrials = getEnvIntOrDefault("RLA_NTRIALS", c.NTrials)
	c.Quantile = getEnvFloatOrDefault("RLA_QUANTILE", c.Quantile)
	c.HasStyle = getEnvBoolOrDefault("RLA_HAS_STYLE", c.HasStyle)
	c.MaxSamplesAllowed = getEnvIntOrDefault("RLA_MAX_SAMPLES", c.MaxSamplesAllowed)
	c.MaxRounds = getEnvIntOrDefault("RLA_MAX_ROUNDS", c.MaxRounds)
	c.Concurrency = getEnvIntOrDefault("RLA_CONCURRENCY", c.Concurrency)
	c.MinMargin = getEnvFloatOrDefault("RLA_MIN_MARGIN", c.MinMargin)
	c.Betting.Strategy = getEnvOrDefault("RLA_STRATEGY", c.Betting.Strategy)
	c.Betting.MaxRisk = getEnvFloatOrDefault("RLA_MAX_RISK", c.Betting.MaxRisk)
	c.Betting.FuzzPct = getEnvFloatOrDefault("RLA_FUZZ_PCT", c.Betting.FuzzPct)
	c.Betting.PriorWeight = getEnvIntOrDefault("RLA_PRIOR_WEIGHT", c.Betting.PriorWeight)
	c.ErrorRatesFile = getEnvOrDefault("RLA_ERROR_RATES_FILE", c.ErrorRatesFile)
	c.Database.URL = getEnvOrDefault("DATABASE_URL", c.Database.URL)
}

// Validate rejects configurations that would fail once sampling has begun
func (c *AuditConfig) Validate() error {
	if c.Type != AuditTypePolling && c.Type != AuditTypeClca {
		return core.NewConfigError("type", fmt.Sprintf("unknown audit type %q", c.Type))
	}
	if c.RiskLimit <= 0 || c.RiskLimit >= 1 {
		return core.NewConfigError("risk_limit", "must be in (0, 1)")
	}
	if c.NTrials < 1 {
		return core.NewConfigError("ntrials", "need at least one trial")
	}
	if c.Quantile <= 0 || c.Quantile > 1 {
		return core.NewConfigError("quantile", "must be in (0, 1]")
	}
	if c.MaxSamplesAllowed < 0 {
		return core.NewConfigError("max_samples_allowed", "must be non-negative")
	}
	if c.MaxRounds < 1 {
		return core.NewConfigError("max_rounds", "need at least one round")
	}
	if c.Concurrency < 1 {
		return core.NewConfigError("concurrency", "need at least one worker")
	}
	if c.MinMargin < 0 || c.MinMargin >= 1 {
		return core.NewConfigError("min_margin", "must be in [0, 1)")
	}
	if c.Alpha.D < 0 || c.Alpha.F < 0 {
		return core.NewConfigError("alpha", "d and f must be non-negative")
	}
	if c.ErrorRates != nil {
		if err := c.ErrorRates.Validate(); err != nil {
			return core.NewConfigError("error_rates", err.Error())
		}
	}
	if c.Type == AuditTypePolling {
		return nil
	}
	_, err := c.Strategy(0, 2, nil)
	return err
}

// RateTable is the configured error rate table, or the default one
func (c *AuditConfig) RateTable() stats.ErrorRateTable {
	if c.ErrorRates != nil {
		return *c.ErrorRates
	}
	return stats.DefaultErrorRateTable()
}

// Strategy builds the configured betting strategy for a contest. measured, when
// set, are the rates seen in the previous round and take precedence over the
// configured choice, except for the general adaptive strategy which starts from them.
func (c *AuditConfig) Strategy(phantomRate float64, ncand int, measured *stats.DiscrepancyRates) (betting.Strategy, error) {
	kind, err := betting.ParseKind(c.Betting.Strategy)
	if err != nil {
		return betting.Strategy{}, core.NewConfigError("betting.strategy", err.Error())
	}
	s := betting.Strategy{
		Kind:        kind,
		MaxRisk:     c.Betting.MaxRisk,
		D:           c.Betting.PriorWeight,
		PhantomRate: phantomRate,
	}
	switch kind {
	case betting.KindApriori, betting.KindOracle:
		s.Rates = c.Betting.AprioriRates
	case betting.KindFuzzTable:
		table := c.RateTable()
		s.Table = &table
		s.NumCandidates = ncand
		s.FuzzPct = c.Betting.FuzzPct
	case betting.KindOptimalNoP1:
		s.P2 = c.Betting.P2
	case betting.KindAdaptive, betting.KindGeneralAdaptive:
		s.Rates = c.Betting.AprioriRates
	case betting.KindNoError:
	}
	if measured != nil {
		rates := *measured
		switch kind {
		case betting.KindGeneralAdaptive:
			s.Rates = &rates
		case betting.KindOracle, betting.KindOptimalNoP1:
		default:
			s.Kind = betting.KindAdaptive
			s.Rates = &rates
		}
	}
	if s.Kind == betting.KindAdaptive && s.Rates == nil {
		zero := stats.ZeroRates
		s.Rates = &zero
	}
	if err := s.Validate(); err != nil {
		return betting.Strategy{}, err
	}
	return s, nil
}

// LoadErrorRateTable reads an error rate table from a YAML file of the form
//
//	rows:
//	  2: {p2o: 0.0001, p1o: 0.01, p1u: 0.01, p2u: 0.0001}
func LoadErrorRateTable(path string) (stats.ErrorRateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stats.ErrorRateTable{}, errors.Wrapf(err, "failed to read error rate table %s", path)
	}
	var table stats.ErrorRateTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return stats.ErrorRateTable{}, core.NewConfigError("error_rates_file", err.Error())
	}
	if err := table.Validate(); err != nil {
		return stats.ErrorRateTable{}, core.NewConfigError("error_rates_file", err.Error())
	}
	return table, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
