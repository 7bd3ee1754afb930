// Package stock provides the tradable asset entity with validated
// symbol, validated price, and price-change notification.
package stock

import (
	"context"
	"regexp"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openfolio/rebalancer/internal/decimals"
)

// symbolPattern is the exchange's ticker rule: exactly four uppercase
// ASCII letters.
var symbolPattern = regexp.MustCompile(`^[A-Z]{4}$`)

// PriceChange is delivered to listeners when a price moves by at least
// the alert threshold. Percent is the fractional change (new-old)/old
// at the percent scale.
type PriceChange struct {
	Symbol  string
	Old     decimal.Decimal
	New     decimal.Decimal
	Percent decimal.Decimal
}

// PriceListener receives significant price changes. The portfolio
// registry implements this to fan rebalances out to affected
// portfolios.
type PriceListener interface {
	OnPriceChange(ctx context.Context, change PriceChange)
}

// Limits bounds prices and gates change notifications.
type Limits struct {
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	AlertThreshold decimal.Decimal // minimum |change|/old that notifies, fraction of 1
}

// DefaultLimits returns the standard price bounds and a 1% alert
// threshold.
func DefaultLimits() Limits {
	return Limits{
		MinPrice:       decimal.RequireFromString("0.01"),
		MaxPrice:       decimal.RequireFromString("1000000"),
		AlertThreshold: decimal.RequireFromString("0.01"),
	}
}

// Stock is a named tradable asset. It lives for the process's duration
// once listed; prices mutate through SetPrice only.
type Stock struct {
	symbol string
	limits Limits
	log    zerolog.Logger

	mu       sync.RWMutex
	price    decimal.Decimal
	listener PriceListener
}

// New validates the symbol and the opening price and returns the stock.
func New(symbol string, price decimal.Decimal, limits Limits, log zerolog.Logger) (*Stock, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, &InvalidSymbolError{Symbol: symbol}
	}
	if err := validatePrice(symbol, price, limits); err != nil {
		return nil, err
	}
	return &Stock{
		symbol: symbol,
		limits: limits,
		price:  price,
		log:    log.With().Str("stock", symbol).Logger(),
	}, nil
}

// Symbol returns the validated ticker symbol.
func (s *Stock) Symbol() string {
	return s.symbol
}

// Price returns the current price.
func (s *Stock) Price() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

// Subscribe attaches the listener notified on significant price
// changes. A nil listener disables notification.
func (s *Stock) Subscribe(l PriceListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// SetPrice validates and stores a new price. Updates that do not move
// the price at the money scale are dropped. Changes of at least the
// alert threshold are pushed to the subscribed listener with the old
// price, new price and percent change; sub-threshold drift is absorbed
// silently to avoid dispatching rebalance evaluations for noise.
func (s *Stock) SetPrice(ctx context.Context, newPrice decimal.Decimal) error {
	if err := validatePrice(s.symbol, newPrice, s.limits); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.price
	if decimals.EqualAtMoneyScale(old, newPrice) {
		s.mu.Unlock()
		return nil
	}
	s.price = newPrice
	listener := s.listener
	s.mu.Unlock()

	percent := newPrice.Sub(old).Div(old)
	s.log.Debug().
		Str("old", old.String()).
		Str("new", newPrice.String()).
		Str("percent", percent.String()).
		Msg("price updated")

	if listener != nil && percent.Abs().GreaterThanOrEqual(s.limits.AlertThreshold) {
		listener.OnPriceChange(ctx, PriceChange{
			Symbol:  s.symbol,
			Old:     old,
			New:     newPrice,
			Percent: decimals.QuantizePercent(percent),
		})
	}
	return nil
}

func validatePrice(symbol string, price decimal.Decimal, limits Limits) error {
	if !price.IsPositive() {
		return &InvalidPriceError{Symbol: symbol, Price: price, Reason: "price must be positive"}
	}
	if price.LessThan(limits.MinPrice) || price.GreaterThan(limits.MaxPrice) {
		return &InvalidPriceError{
			Symbol: symbol,
			Price:  price,
			Reason: "price outside [" + limits.MinPrice.String() + ", " + limits.MaxPrice.String() + "]",
		}
	}
	return nil
}
