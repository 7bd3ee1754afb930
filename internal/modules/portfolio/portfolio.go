// Package portfolio implements the rebalancing engine: portfolios
// holding allocated positions that are driven back to their target
// distribution when prices move, atomically via the batch broker.
package portfolio

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openfolio/rebalancer/internal/decimals"
	"github.com/openfolio/rebalancer/internal/domain"
	"github.com/openfolio/rebalancer/internal/modules/stock"
)

// AllocatedStock is a target slot within a portfolio: a stock, its
// target share of the portfolio's value, and the quantity currently
// held. Quantities are mutated only under the portfolio's state mutex.
type AllocatedStock struct {
	stock    *stock.Stock
	percent  decimal.Decimal
	quantity decimal.Decimal
}

// Holding is a read-only snapshot of one allocated position.
type Holding struct {
	Symbol   string
	Percent  decimal.Decimal
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Value    decimal.Decimal
}

// Portfolio holds allocated positions and owns the rebalance loop.
// Mutations happen through Initialize and Rebalance only; both run
// under the TTL rebalance lock and either commit fully or compensate.
type Portfolio struct {
	id                string
	name              string
	initialInvestment decimal.Decimal
	broker            domain.Broker
	registry          *Registry
	limits            Limits
	log               zerolog.Logger

	lock *rebalanceLock

	mu             sync.Mutex
	allocated      map[string]*AllocatedStock
	stale          bool
	initialized    bool
	failedAttempts int
}

// New validates the configuration and returns an inert portfolio.
// Positions are established by Initialize.
func New(cfg Config, limits Limits, log zerolog.Logger) (*Portfolio, error) {
	if err := cfg.validate(limits); err != nil {
		return nil, err
	}

	allocated := make(map[string]*AllocatedStock, len(cfg.Allocations))
	for _, alloc := range cfg.Allocations {
		allocated[alloc.Stock.Symbol()] = &AllocatedStock{
			stock:   alloc.Stock,
			percent: decimals.QuantizePercent(alloc.Percent),
		}
	}

	return &Portfolio{
		id:                cfg.idOrNew(),
		name:              cfg.Name,
		initialInvestment: decimals.QuantizeMoney(cfg.InitialInvestment),
		broker:            cfg.Broker,
		registry:          cfg.Registry,
		limits:            limits,
		log:               log.With().Str("portfolio", cfg.Name).Logger(),
		lock:              newRebalanceLock(limits.LockTTL),
		allocated:         allocated,
	}, nil
}

// ID returns the portfolio's opaque unique id.
func (p *Portfolio) ID() string {
	return p.id
}

// Name returns the portfolio's display name.
func (p *Portfolio) Name() string {
	return p.name
}

// AllocatedSymbols returns the symbols this portfolio holds, sorted.
func (p *Portfolio) AllocatedSymbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	symbols := make([]string, 0, len(p.allocated))
	for symbol := range p.allocated {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Holdings returns a snapshot of the current positions.
func (p *Portfolio) Holdings() []Holding {
	p.mu.Lock()
	defer p.mu.Unlock()

	holdings := make([]Holding, 0, len(p.allocated))
	for symbol, alloc := range p.allocated {
		price := alloc.stock.Price()
		holdings = append(holdings, Holding{
			Symbol:   symbol,
			Percent:  alloc.percent,
			Quantity: alloc.quantity,
			Price:    price,
			Value:    decimals.QuantizeMoney(alloc.quantity.Mul(price)),
		})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings
}

// TotalValue returns the portfolio's current market value at the money
// scale.
func (p *Portfolio) TotalValue() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return decimals.QuantizeMoney(p.totalValueLocked())
}

func (p *Portfolio) totalValueLocked() decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range p.allocated {
		total = total.Add(alloc.quantity.Mul(alloc.stock.Price()))
	}
	return total
}

// Deviations returns each stock's |currentPercent - targetPercent|
// against the current total value. Empty when the total value is zero.
func (p *Portfolio) Deviations() map[string]decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.totalValueLocked()
	if total.IsZero() {
		return map[string]decimal.Decimal{}
	}

	deviations := make(map[string]decimal.Decimal, len(p.allocated))
	for symbol, alloc := range p.allocated {
		current := alloc.quantity.Mul(alloc.stock.Price()).Div(total)
		deviations[symbol] = current.Sub(alloc.percent).Abs()
	}
	return deviations
}

// Stale reports whether the portfolio is in the terminal stale state.
func (p *Portfolio) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// SetStale marks the portfolio stale. Operator surface; the engine
// calls this itself when a rollback fails.
func (p *Portfolio) SetStale() {
	p.mu.Lock()
	p.stale = true
	p.mu.Unlock()
	p.log.Warn().Msg("stale state set: mutating operations are rejected")
}

// ClearStale clears the stale state. This is operator intervention,
// not a recovery path: holdings and broker state must be verified
// manually first.
func (p *Portfolio) ClearStale() {
	p.mu.Lock()
	p.stale = false
	p.mu.Unlock()
	p.log.Warn().Msg("stale state cleared by operator")
}

// Initialize establishes the opening positions: one buy-by-amount per
// allocated stock, all under one batch, executed concurrently. On full
// success the held quantities are set from the realized outcomes and
// the portfolio registers with its registry. On partial failure the
// batch is rolled back; a rollback failure leaves the portfolio stale.
func (p *Portfolio) Initialize(ctx context.Context) error {
	if p.Stale() {
		return &StaleError{Portfolio: p.name}
	}

	batchID := uuid.New()
	p.mu.Lock()
	requests := make([]domain.OrderRequest, 0, len(p.allocated))
	for symbol, alloc := range p.allocated {
		amount := decimals.QuantizeMoney(p.initialInvestment.Mul(alloc.percent))
		requests = append(requests, domain.NewBuyByAmount(symbol, amount, &batchID))
	}
	p.mu.Unlock()

	outcomes := p.executeAll(ctx, requests, p.broker.BuyByAmount)
	failed := failedOutcomes(outcomes)

	if len(failed) == 0 {
		p.mu.Lock()
		for _, out := range outcomes {
			p.allocated[out.Request.Symbol].quantity = out.Quantity
		}
		p.initialized = true
		p.mu.Unlock()

		if p.registry != nil {
			p.registry.Register(p)
		}
		p.broker.DiscardBatch(batchID)
		p.log.Info().
			Str("total", p.TotalValue().String()).
			Int("positions", len(outcomes)).
			Msg("portfolio initialized")
		return nil
	}

	if !p.broker.RollbackBatch(ctx, batchID) {
		p.SetStale()
		return &StaleError{Portfolio: p.name, Failed: failed}
	}
	return &InitializationError{Portfolio: p.name, Failed: failed}
}

// Rebalance drives the portfolio back to its target allocation. The
// whole operation runs under the TTL rebalance lock; a concurrent call
// that finds the lock held returns silently with no side effect.
//
// Prices are snapshotted once; a price change arriving mid-rebalance
// does not reenter the calculation, and its dispatch will find the
// lock held and skip. The next price change triggers the next
// rebalance.
func (p *Portfolio) Rebalance(ctx context.Context) error {
	if p.Stale() {
		return &StaleError{Portfolio: p.name}
	}

	if !p.lock.tryAcquire() {
		p.log.Debug().Msg("rebalance already in flight, skipping")
		return nil
	}
	defer p.lock.release()

	snapshot, total := p.snapshot()
	if total.IsZero() {
		return nil
	}

	maxDeviation := decimal.Zero
	for _, alloc := range snapshot {
		current := alloc.quantity.Mul(alloc.price).Div(total)
		deviation := current.Sub(alloc.percent).Abs()
		if deviation.GreaterThan(maxDeviation) {
			maxDeviation = deviation
		}
	}
	if maxDeviation.LessThan(p.limits.DeviationThreshold) {
		p.log.Debug().
			Str("max_deviation", maxDeviation.String()).
			Msg("deviation below threshold, no trades")
		return nil
	}

	batchID := uuid.New()
	var sells, buys []domain.OrderRequest
	for _, alloc := range snapshot {
		targetQuantity := decimals.QuantizeQuantity(total.Mul(alloc.percent).Div(alloc.price))
		delta := targetQuantity.Sub(alloc.quantity)
		switch {
		case delta.IsNegative():
			sells = append(sells, domain.NewSellByQuantity(alloc.symbol, delta.Abs(), &batchID))
		case delta.IsPositive():
			buys = append(buys, domain.NewBuyByQuantity(alloc.symbol, delta, &batchID))
		}
	}
	if len(sells) == 0 && len(buys) == 0 {
		return nil
	}

	p.log.Info().
		Str("batch_id", batchID.String()).
		Str("total", decimals.QuantizeMoney(total).String()).
		Str("max_deviation", maxDeviation.String()).
		Int("sells", len(sells)).
		Int("buys", len(buys)).
		Msg("rebalancing")

	// Sells first so freed cash funds the buys; concurrent within each
	// phase.
	outcomes := p.executeAll(ctx, sells, p.broker.SellByQuantity)
	outcomes = append(outcomes, p.executeAll(ctx, buys, p.broker.BuyByQuantity)...)
	failed := failedOutcomes(outcomes)

	if len(failed) == 0 {
		p.commit(outcomes)
		p.broker.DiscardBatch(batchID)
		return nil
	}

	p.mu.Lock()
	p.failedAttempts++
	attempt := p.failedAttempts
	p.mu.Unlock()

	if !p.broker.RollbackBatch(ctx, batchID) {
		p.SetStale()
		return &StaleError{Portfolio: p.name, Failed: failed}
	}
	return &RetryError{Portfolio: p.name, Failed: failed, Attempt: attempt}
}

// snapshot copies the positions with one consistent price read per
// stock. The rebalance computation uses this snapshot throughout;
// consistency within one rebalance wins over freshness.
type allocationSnapshot struct {
	symbol   string
	percent  decimal.Decimal
	quantity decimal.Decimal
	price    decimal.Decimal
}

func (p *Portfolio) snapshot() ([]allocationSnapshot, decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make([]allocationSnapshot, 0, len(p.allocated))
	total := decimal.Zero
	for symbol, alloc := range p.allocated {
		price := alloc.stock.Price()
		snapshot = append(snapshot, allocationSnapshot{
			symbol:   symbol,
			percent:  alloc.percent,
			quantity: alloc.quantity,
			price:    price,
		})
		total = total.Add(alloc.quantity.Mul(price))
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].symbol < snapshot[j].symbol })
	return snapshot, total
}

// commit applies realized quantities after a fully successful batch.
func (p *Portfolio) commit(outcomes []domain.OrderOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, out := range outcomes {
		alloc := p.allocated[out.Request.Symbol]
		if out.Request.Side == domain.OrderSideBuy {
			alloc.quantity = decimals.QuantizeQuantity(alloc.quantity.Add(out.Quantity))
		} else {
			alloc.quantity = decimals.QuantizeQuantity(alloc.quantity.Sub(out.Quantity))
		}
	}
	p.failedAttempts = 0
}

// executeAll runs one phase of orders concurrently and gathers every
// outcome, failures included.
func (p *Portfolio) executeAll(
	ctx context.Context,
	requests []domain.OrderRequest,
	run func(context.Context, domain.OrderRequest) (domain.OrderOutcome, error),
) []domain.OrderOutcome {
	outcomes := make([]domain.OrderOutcome, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req domain.OrderRequest) {
			defer wg.Done()
			out, _ := run(ctx, req)
			outcomes[i] = out
		}(i, req)
	}
	wg.Wait()
	return outcomes
}

func failedOutcomes(outcomes []domain.OrderOutcome) []domain.OrderOutcome {
	var failed []domain.OrderOutcome
	for _, out := range outcomes {
		if !out.Succeeded() {
			failed = append(failed, out)
		}
	}
	return failed
}
