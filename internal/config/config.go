// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/openfolio/rebalancer/internal/modules/broker"
	"github.com/openfolio/rebalancer/internal/modules/portfolio"
	"github.com/openfolio/rebalancer/internal/modules/stock"
)

// Settings holds the engine configuration. Values come from defaults,
// then an optional YAML file, then environment variables, each layer
// overriding the previous one.
type Settings struct {
	LogLevel  string
	LogPretty bool

	// stock limits
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	AlertThreshold decimal.Decimal

	// portfolio limits
	MinInvestment      decimal.Decimal
	MaxPortfolioValue  decimal.Decimal
	DeviationThreshold decimal.Decimal
	RebalanceLockTTL   time.Duration

	// broker behavior
	BrokerMinDelay      time.Duration
	BrokerMaxDelay      time.Duration
	OrderRate           float64
	OrderBurst          int
	RollbackMaxAttempts int
	RollbackRetryMin    time.Duration
	RollbackRetryMax    time.Duration
	MaxOrderQuantity    decimal.Decimal
	MaxOrderAmount      decimal.Decimal

	// market simulation
	SimulatorSpec     string // cron spec, seconds field included
	SimulatorMaxStep  decimal.Decimal
	SimulatorDisabled bool
}

// Default returns the standard engine settings.
func Default() *Settings {
	brokerCfg := broker.DefaultConfig()
	portfolioLimits := portfolio.DefaultLimits()
	stockLimits := stock.DefaultLimits()

	return &Settings{
		LogLevel:  "info",
		LogPretty: false,

		MinPrice:       stockLimits.MinPrice,
		MaxPrice:       stockLimits.MaxPrice,
		AlertThreshold: stockLimits.AlertThreshold,

		MinInvestment:      portfolioLimits.MinInvestment,
		MaxPortfolioValue:  portfolioLimits.MaxValue,
		DeviationThreshold: portfolioLimits.DeviationThreshold,
		RebalanceLockTTL:   portfolioLimits.LockTTL,

		BrokerMinDelay:      100 * time.Millisecond,
		BrokerMaxDelay:      300 * time.Millisecond,
		OrderRate:           brokerCfg.OrderRate,
		OrderBurst:          brokerCfg.OrderBurst,
		RollbackMaxAttempts: brokerCfg.RollbackMaxAttempts,
		RollbackRetryMin:    brokerCfg.RollbackRetryMin,
		RollbackRetryMax:    brokerCfg.RollbackRetryMax,
		MaxOrderQuantity:    brokerCfg.MaxQuantity,
		MaxOrderAmount:      brokerCfg.MaxOrderAmount,

		SimulatorSpec:    "*/5 * * * * *",
		SimulatorMaxStep: decimal.RequireFromString("0.03"),
	}
}

// Load builds the settings: defaults, then the YAML file named by
// REBALANCER_CONFIG_FILE if set, then environment variables.
func Load() (*Settings, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	s := Default()

	if path := os.Getenv("REBALANCER_CONFIG_FILE"); path != "" {
		if err := s.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// fileSettings mirrors Settings with YAML-friendly types; decimals
// travel as strings and durations in Go duration syntax.
type fileSettings struct {
	LogLevel  *string `yaml:"log_level"`
	LogPretty *bool   `yaml:"log_pretty"`

	MinPrice       *string `yaml:"min_price"`
	MaxPrice       *string `yaml:"max_price"`
	AlertThreshold *string `yaml:"alert_threshold"`

	MinInvestment      *string `yaml:"min_investment"`
	MaxPortfolioValue  *string `yaml:"max_portfolio_value"`
	DeviationThreshold *string `yaml:"deviation_threshold"`
	RebalanceLockTTL   *string `yaml:"rebalance_lock_ttl"`

	BrokerMinDelay      *string  `yaml:"broker_min_delay"`
	BrokerMaxDelay      *string  `yaml:"broker_max_delay"`
	OrderRate           *float64 `yaml:"order_rate"`
	OrderBurst          *int     `yaml:"order_burst"`
	RollbackMaxAttempts *int     `yaml:"rollback_max_attempts"`
	RollbackRetryMin    *string  `yaml:"rollback_retry_min"`
	RollbackRetryMax    *string  `yaml:"rollback_retry_max"`
	MaxOrderQuantity    *string  `yaml:"max_order_quantity"`
	MaxOrderAmount      *string  `yaml:"max_order_amount"`

	SimulatorSpec     *string `yaml:"simulator_spec"`
	SimulatorMaxStep  *string `yaml:"simulator_max_step"`
	SimulatorDisabled *bool   `yaml:"simulator_disabled"`
}

func (s *Settings) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var f fileSettings
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&s.LogLevel, f.LogLevel)
	setBool(&s.LogPretty, f.LogPretty)
	setFloat(&s.OrderRate, f.OrderRate)
	setInt(&s.OrderBurst, f.OrderBurst)
	setInt(&s.RollbackMaxAttempts, f.RollbackMaxAttempts)
	setString(&s.SimulatorSpec, f.SimulatorSpec)
	setBool(&s.SimulatorDisabled, f.SimulatorDisabled)

	decimalFields := []struct {
		dst  *decimal.Decimal
		src  *string
		name string
	}{
		{&s.MinPrice, f.MinPrice, "min_price"},
		{&s.MaxPrice, f.MaxPrice, "max_price"},
		{&s.AlertThreshold, f.AlertThreshold, "alert_threshold"},
		{&s.MinInvestment, f.MinInvestment, "min_investment"},
		{&s.MaxPortfolioValue, f.MaxPortfolioValue, "max_portfolio_value"},
		{&s.DeviationThreshold, f.DeviationThreshold, "deviation_threshold"},
		{&s.MaxOrderQuantity, f.MaxOrderQuantity, "max_order_quantity"},
		{&s.MaxOrderAmount, f.MaxOrderAmount, "max_order_amount"},
		{&s.SimulatorMaxStep, f.SimulatorMaxStep, "simulator_max_step"},
	}
	for _, field := range decimalFields {
		if field.src == nil {
			continue
		}
		value, err := decimal.NewFromString(*field.src)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", field.name, err)
		}
		*field.dst = value
	}

	durationFields := []struct {
		dst  *time.Duration
		src  *string
		name string
	}{
		{&s.RebalanceLockTTL, f.RebalanceLockTTL, "rebalance_lock_ttl"},
		{&s.BrokerMinDelay, f.BrokerMinDelay, "broker_min_delay"},
		{&s.BrokerMaxDelay, f.BrokerMaxDelay, "broker_max_delay"},
		{&s.RollbackRetryMin, f.RollbackRetryMin, "rollback_retry_min"},
		{&s.RollbackRetryMax, f.RollbackRetryMax, "rollback_retry_max"},
	}
	for _, field := range durationFields {
		if field.src == nil {
			continue
		}
		value, err := time.ParseDuration(*field.src)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", field.name, err)
		}
		*field.dst = value
	}
	return nil
}

func (s *Settings) applyEnv() error {
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)
	s.LogPretty = getEnvAsBool("LOG_PRETTY", s.LogPretty)

	var err error
	if s.MinPrice, err = getEnvAsDecimal("MIN_PRICE", s.MinPrice); err != nil {
		return err
	}
	if s.MaxPrice, err = getEnvAsDecimal("MAX_PRICE", s.MaxPrice); err != nil {
		return err
	}
	if s.AlertThreshold, err = getEnvAsDecimal("ALERT_THRESHOLD", s.AlertThreshold); err != nil {
		return err
	}
	if s.MinInvestment, err = getEnvAsDecimal("MIN_INVESTMENT", s.MinInvestment); err != nil {
		return err
	}
	if s.MaxPortfolioValue, err = getEnvAsDecimal("MAX_PORTFOLIO_VALUE", s.MaxPortfolioValue); err != nil {
		return err
	}
	if s.DeviationThreshold, err = getEnvAsDecimal("DEVIATION_THRESHOLD", s.DeviationThreshold); err != nil {
		return err
	}
	if s.RebalanceLockTTL, err = getEnvAsDuration("REBALANCE_LOCK_TTL", s.RebalanceLockTTL); err != nil {
		return err
	}
	if s.BrokerMinDelay, err = getEnvAsDuration("BROKER_MIN_DELAY", s.BrokerMinDelay); err != nil {
		return err
	}
	if s.BrokerMaxDelay, err = getEnvAsDuration("BROKER_MAX_DELAY", s.BrokerMaxDelay); err != nil {
		return err
	}
	if s.RollbackRetryMin, err = getEnvAsDuration("ROLLBACK_RETRY_MIN", s.RollbackRetryMin); err != nil {
		return err
	}
	if s.RollbackRetryMax, err = getEnvAsDuration("ROLLBACK_RETRY_MAX", s.RollbackRetryMax); err != nil {
		return err
	}
	if s.MaxOrderQuantity, err = getEnvAsDecimal("MAX_ORDER_QUANTITY", s.MaxOrderQuantity); err != nil {
		return err
	}
	if s.MaxOrderAmount, err = getEnvAsDecimal("MAX_ORDER_AMOUNT", s.MaxOrderAmount); err != nil {
		return err
	}
	if s.SimulatorMaxStep, err = getEnvAsDecimal("SIMULATOR_MAX_STEP", s.SimulatorMaxStep); err != nil {
		return err
	}
	s.OrderRate = getEnvAsFloat("ORDER_RATE", s.OrderRate)
	s.OrderBurst = getEnvAsInt("ORDER_BURST", s.OrderBurst)
	s.RollbackMaxAttempts = getEnvAsInt("ROLLBACK_MAX_ATTEMPTS", s.RollbackMaxAttempts)
	s.SimulatorSpec = getEnv("SIMULATOR_SPEC", s.SimulatorSpec)
	s.SimulatorDisabled = getEnvAsBool("SIMULATOR_DISABLED", s.SimulatorDisabled)
	return nil
}

// Validate checks cross-field consistency.
func (s *Settings) Validate() error {
	if s.MinPrice.GreaterThanOrEqual(s.MaxPrice) {
		return fmt.Errorf("MIN_PRICE %s must be below MAX_PRICE %s", s.MinPrice, s.MaxPrice)
	}
	if !s.AlertThreshold.IsPositive() {
		return fmt.Errorf("ALERT_THRESHOLD must be positive, got %s", s.AlertThreshold)
	}
	if !s.DeviationThreshold.IsPositive() {
		return fmt.Errorf("DEVIATION_THRESHOLD must be positive, got %s", s.DeviationThreshold)
	}
	if s.BrokerMinDelay > s.BrokerMaxDelay {
		return fmt.Errorf("BROKER_MIN_DELAY %s exceeds BROKER_MAX_DELAY %s", s.BrokerMinDelay, s.BrokerMaxDelay)
	}
	if s.RebalanceLockTTL <= 0 {
		return fmt.Errorf("REBALANCE_LOCK_TTL must be positive, got %s", s.RebalanceLockTTL)
	}
	return nil
}

// StockLimits maps the settings onto stock validation limits.
func (s *Settings) StockLimits() stock.Limits {
	return stock.Limits{
		MinPrice:       s.MinPrice,
		MaxPrice:       s.MaxPrice,
		AlertThreshold: s.AlertThreshold,
	}
}

// PortfolioLimits maps the settings onto portfolio limits.
func (s *Settings) PortfolioLimits() portfolio.Limits {
	return portfolio.Limits{
		MinInvestment:      s.MinInvestment,
		MaxValue:           s.MaxPortfolioValue,
		DeviationThreshold: s.DeviationThreshold,
		LockTTL:            s.RebalanceLockTTL,
	}
}

// BrokerConfig maps the settings onto the broker configuration.
func (s *Settings) BrokerConfig() broker.Config {
	return broker.Config{
		MinDelay:            s.BrokerMinDelay,
		MaxDelay:            s.BrokerMaxDelay,
		OrderRate:           s.OrderRate,
		OrderBurst:          s.OrderBurst,
		RollbackMaxAttempts: s.RollbackMaxAttempts,
		RollbackRetryMin:    s.RollbackRetryMin,
		RollbackRetryMax:    s.RollbackRetryMax,
		MaxQuantity:         s.MaxOrderQuantity,
		MaxOrderAmount:      s.MaxOrderAmount,
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
