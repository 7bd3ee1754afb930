// Package market holds the tradable stock universe and the price
// simulation that drives it.
package market

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openfolio/rebalancer/internal/domain"
	"github.com/openfolio/rebalancer/internal/modules/stock"
)

// Market is the symbol-indexed stock universe. It is the engine's
// single price source: brokers quote through it and the simulator
// walks it.
type Market struct {
	log zerolog.Logger

	mu     sync.RWMutex
	stocks map[string]*stock.Stock
}

// New creates an empty market.
func New(log zerolog.Logger) *Market {
	return &Market{
		log:    log.With().Str("service", "market").Logger(),
		stocks: make(map[string]*stock.Stock),
	}
}

// Add lists a stock. Symbols are unique.
func (m *Market) Add(s *stock.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol := s.Symbol()
	if _, exists := m.stocks[symbol]; exists {
		return fmt.Errorf("symbol %s already listed", symbol)
	}
	m.stocks[symbol] = s
	m.log.Info().Str("symbol", symbol).Str("price", s.Price().String()).Msg("stock listed")
	return nil
}

// Get returns the listed stock for the symbol.
func (m *Market) Get(symbol string) (*stock.Stock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stocks[symbol]
	return s, ok
}

// Has reports whether the symbol is listed.
func (m *Market) Has(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stocks[symbol]
	return ok
}

// PriceOf returns the current price for the symbol.
func (m *Market) PriceOf(symbol string) (decimal.Decimal, error) {
	s, ok := m.Get(symbol)
	if !ok {
		return decimal.Zero, &domain.StockNotFoundError{Symbol: symbol}
	}
	return s.Price(), nil
}

// SetPrice updates the symbol's price, notifying its listeners.
func (m *Market) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	s, ok := m.Get(symbol)
	if !ok {
		return &domain.StockNotFoundError{Symbol: symbol}
	}
	return s.SetPrice(ctx, price)
}

// Symbols returns the listed symbols, sorted.
func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.stocks))
	for symbol := range m.stocks {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// snapshot returns the listed stocks for iteration outside the lock.
func (m *Market) snapshot() []*stock.Stock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stocks := make([]*stock.Stock, 0, len(m.stocks))
	for _, s := range m.stocks {
		stocks = append(stocks, s)
	}
	return stocks
}

var _ domain.Market = (*Market)(nil)
