package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfolio/rebalancer/internal/decimals"
	"github.com/openfolio/rebalancer/internal/domain"
	"github.com/openfolio/rebalancer/internal/modules/stock"
)

// ErrInvalidConfig marks portfolio configuration validation failures.
var ErrInvalidConfig = errors.New("invalid portfolio config")

// Allocation pairs a stock with its target share of the portfolio's
// value, as a fraction of 1 at the percent scale.
type Allocation struct {
	Stock   *stock.Stock
	Percent decimal.Decimal
}

// Config is the validated construction input for a portfolio.
type Config struct {
	ID                string // defaulted to a fresh uuid when empty
	Name              string
	InitialInvestment decimal.Decimal
	Broker            domain.Broker
	Registry          *Registry // optional; nil portfolios are never dispatched to
	Allocations       []Allocation
}

// Limits carries the engine thresholds a portfolio operates under.
type Limits struct {
	MinInvestment      decimal.Decimal
	MaxValue           decimal.Decimal
	DeviationThreshold decimal.Decimal // minimum max-deviation that issues trades
	LockTTL            time.Duration   // stuck rebalance lock takeover interval
}

// DefaultLimits returns the standard engine thresholds: $1 minimum,
// $10M ceiling, 2% deviation gate, 6 hour lock TTL.
func DefaultLimits() Limits {
	return Limits{
		MinInvestment:      decimal.RequireFromString("1"),
		MaxValue:           decimal.RequireFromString("10000000"),
		DeviationThreshold: decimal.RequireFromString("0.02"),
		LockTTL:            6 * time.Hour,
	}
}

// validate checks the config against the limits. Allocation percents
// are compared at the percent scale and must sum to exactly 1.
func (c *Config) validate(limits Limits) error {
	if c.Name == "" || len(c.Name) > 100 {
		return fmt.Errorf("%w: name must be 1-100 characters", ErrInvalidConfig)
	}
	if c.Broker == nil {
		return fmt.Errorf("%w: broker is required", ErrInvalidConfig)
	}
	if c.InitialInvestment.LessThan(limits.MinInvestment) {
		return fmt.Errorf("%w: initial investment %s below minimum %s",
			ErrInvalidConfig, c.InitialInvestment, limits.MinInvestment)
	}
	if c.InitialInvestment.GreaterThan(limits.MaxValue) {
		return fmt.Errorf("%w: initial investment %s above maximum %s",
			ErrInvalidConfig, c.InitialInvestment, limits.MaxValue)
	}
	if len(c.Allocations) == 0 {
		return fmt.Errorf("%w: at least one stock must be allocated", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Allocations))
	sum := decimal.Zero
	for _, alloc := range c.Allocations {
		if alloc.Stock == nil {
			return fmt.Errorf("%w: allocation without a stock", ErrInvalidConfig)
		}
		symbol := alloc.Stock.Symbol()
		if seen[symbol] {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalidConfig, symbol)
		}
		seen[symbol] = true

		percent := decimals.QuantizePercent(alloc.Percent)
		if !percent.IsPositive() || percent.GreaterThan(decimal.New(1, 0)) {
			return fmt.Errorf("%w: allocation for %s must be in (0, 1], got %s",
				ErrInvalidConfig, symbol, alloc.Percent)
		}
		sum = sum.Add(percent)
	}

	if !sum.Equal(decimal.New(1, 0)) {
		return fmt.Errorf("%w: allocations must sum to exactly 1, got %s", ErrInvalidConfig, sum)
	}
	return nil
}

func (c *Config) idOrNew() string {
	if c.ID != "" {
		return c.ID
	}
	return uuid.NewString()
}
