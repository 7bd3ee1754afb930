// Package broker implements the atomic batch broker: order primitives
// that record per-operation outcomes under a batch identity, with
// compensating rollback when a batch is not wholly successful.
package broker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/openfolio/rebalancer/internal/decimals"
	"github.com/openfolio/rebalancer/internal/domain"
)

// Config tunes execution behaviour. Delays simulate transport latency;
// the rate limiter throttles order submission the way a live venue
// would.
type Config struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	OrderRate float64 // orders per second, <= 0 means unlimited
	OrderBurst int

	RollbackMaxAttempts int
	RollbackRetryMin    time.Duration
	RollbackRetryMax    time.Duration

	MaxQuantity    decimal.Decimal // per-order share ceiling
	MaxOrderAmount decimal.Decimal // per-order cash ceiling
}

// DefaultConfig returns production-shaped limits with no simulated
// latency.
func DefaultConfig() Config {
	return Config{
		OrderRate:           25,
		OrderBurst:          30,
		RollbackMaxAttempts: 3,
		RollbackRetryMin:    50 * time.Millisecond,
		RollbackRetryMax:    500 * time.Millisecond,
		MaxQuantity:         decimal.RequireFromString("1000000"),
		MaxOrderAmount:      decimal.RequireFromString("10000000"),
	}
}

// Broker executes orders against a market and tracks batches for
// atomic rollback. The batch table is the only shared mutable state;
// its mutex is held around table mutations only, never across order
// execution.
type Broker struct {
	market  domain.Market
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.Mutex
	batches map[uuid.UUID]map[uuid.UUID]*batchEntry
}

// New creates a broker executing against the given market.
func New(market domain.Market, cfg Config, log zerolog.Logger) *Broker {
	limit := rate.Inf
	if cfg.OrderRate > 0 {
		limit = rate.Limit(cfg.OrderRate)
	}
	burst := cfg.OrderBurst
	if burst < 1 {
		burst = 1
	}
	return &Broker{
		market:  market,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("service", "broker").Logger(),
		batches: make(map[uuid.UUID]map[uuid.UUID]*batchEntry),
	}
}

// BuyByAmount buys at most req.Amount of the symbol at the current
// market price. Realized quantity is returned at the quantity scale.
func (b *Broker) BuyByAmount(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	req.Side = domain.OrderSideBuy
	req.Sizing = domain.SizingByAmount
	return b.execute(ctx, req)
}

// BuyByQuantity buys exactly req.Quantity shares at the current price.
func (b *Broker) BuyByQuantity(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	req.Side = domain.OrderSideBuy
	req.Sizing = domain.SizingByQuantity
	return b.execute(ctx, req)
}

// SellByAmount sells at most req.Amount of the symbol.
func (b *Broker) SellByAmount(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	req.Side = domain.OrderSideSell
	req.Sizing = domain.SizingByAmount
	return b.execute(ctx, req)
}

// SellByQuantity sells exactly req.Quantity shares.
func (b *Broker) SellByQuantity(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	req.Side = domain.OrderSideSell
	req.Sizing = domain.SizingByQuantity
	return b.execute(ctx, req)
}

// execute runs one primitive: idempotency check, pending registration,
// fill, and unconditional outcome recording when a batch id is present.
func (b *Broker) execute(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	if recorded, ok := b.recordedOutcome(req); ok {
		return recorded, recorded.Err
	}
	b.registerPending(req)

	outcome, err := b.fill(ctx, req)
	b.record(req, outcome)

	if err != nil {
		b.log.Warn().
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Str("operation_id", req.OperationID.String()).
			Err(err).
			Msg("order failed")
	}
	return outcome, err
}

// fill resolves the price and computes the realized fill. It never
// touches the batch table.
func (b *Broker) fill(ctx context.Context, req domain.OrderRequest) (domain.OrderOutcome, error) {
	fail := func(cause error) (domain.OrderOutcome, error) {
		err := &domain.OrderError{
			Side:        req.Side,
			Symbol:      req.Symbol,
			OperationID: req.OperationID,
			BatchID:     req.BatchID,
			Err:         cause,
		}
		return domain.OrderOutcome{
			Request:    req,
			State:      domain.StateError,
			Err:        err,
			ExecutedAt: time.Now(),
		}, err
	}

	if err := b.validate(req); err != nil {
		return fail(err)
	}
	if !b.market.Has(req.Symbol) {
		return fail(&domain.StockNotFoundError{Symbol: req.Symbol})
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrBrokerConnection, err))
	}
	if err := b.delay(ctx); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrBrokerConnection, err))
	}

	price, err := b.market.PriceOf(req.Symbol)
	if err != nil {
		return fail(err)
	}

	var quantity, amount decimal.Decimal
	switch req.Sizing {
	case domain.SizingByAmount:
		quantity = decimals.QuantizeQuantity(req.Amount.Div(price))
		amount = decimals.QuantizeMoney(req.Amount)
	default:
		quantity = decimals.QuantizeQuantity(req.Quantity)
		amount = decimals.QuantizeMoney(price.Mul(req.Quantity))
	}

	return domain.OrderOutcome{
		Request:    req,
		State:      domain.StateSuccess,
		Price:      price,
		Quantity:   quantity,
		Amount:     amount,
		ExecutedAt: time.Now(),
	}, nil
}

func (b *Broker) validate(req domain.OrderRequest) error {
	switch req.Sizing {
	case domain.SizingByAmount:
		if !req.Amount.IsPositive() {
			return fmt.Errorf("amount must be positive, got %s", req.Amount)
		}
		if req.Amount.GreaterThan(b.cfg.MaxOrderAmount) {
			return fmt.Errorf("amount %s exceeds per-order ceiling %s", req.Amount, b.cfg.MaxOrderAmount)
		}
	case domain.SizingByQuantity:
		if !req.Quantity.IsPositive() {
			return fmt.Errorf("quantity must be positive, got %s", req.Quantity)
		}
		if req.Quantity.GreaterThan(b.cfg.MaxQuantity) {
			return fmt.Errorf("quantity %s exceeds per-order ceiling %s", req.Quantity, b.cfg.MaxQuantity)
		}
	default:
		return fmt.Errorf("unknown order sizing %q", req.Sizing)
	}
	return nil
}

// delay sleeps for a random duration within the configured execution
// latency window.
func (b *Broker) delay(ctx context.Context) error {
	if b.cfg.MaxDelay <= 0 {
		return nil
	}
	d := b.cfg.MinDelay
	if b.cfg.MaxDelay > b.cfg.MinDelay {
		d += rand.N(b.cfg.MaxDelay - b.cfg.MinDelay)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
