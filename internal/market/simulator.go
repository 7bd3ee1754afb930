package market

import (
	"context"
	"math/rand/v2"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/openfolio/rebalancer/internal/decimals"
	"github.com/openfolio/rebalancer/internal/modules/stock"
)

// Simulator drives the market with a bounded random walk on a cron
// schedule. Each tick moves every listed stock by a uniform factor in
// [-maxStep, +maxStep] of its current price, clamped to the stock
// limits.
type Simulator struct {
	market  *Market
	maxStep decimal.Decimal
	limits  stock.Limits
	log     zerolog.Logger
	cron    *cron.Cron
}

// NewSimulator registers the tick on the cron spec (seconds field
// included) but does not start it.
func NewSimulator(m *Market, spec string, maxStep decimal.Decimal, limits stock.Limits, log zerolog.Logger) (*Simulator, error) {
	s := &Simulator{
		market:  m,
		maxStep: maxStep,
		limits:  limits,
		log:     log.With().Str("service", "simulator").Logger(),
		cron:    cron.New(cron.WithSeconds()),
	}
	if _, err := s.cron.AddFunc(spec, func() {
		s.Tick(context.Background())
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start starts the schedule.
func (s *Simulator) Start() {
	s.cron.Start()
	s.log.Info().Msg("Simulator started")
}

// Stop stops the schedule and waits for a running tick to finish.
func (s *Simulator) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Simulator stopped")
}

// Tick applies one random-walk step to every listed stock. Exported so
// demos and tests can drive the market without the schedule.
func (s *Simulator) Tick(ctx context.Context) {
	for _, listed := range s.market.snapshot() {
		price := listed.Price()
		next := s.step(price)
		if next.Equal(price) {
			continue
		}
		if err := listed.SetPrice(ctx, next); err != nil {
			s.log.Error().
				Err(err).
				Str("symbol", listed.Symbol()).
				Str("price", next.String()).
				Msg("tick price update failed")
		}
	}
}

func (s *Simulator) step(price decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromFloat(rand.Float64()*2 - 1)
	next := decimals.QuantizeMoney(price.Add(price.Mul(s.maxStep).Mul(factor)))
	if next.LessThan(s.limits.MinPrice) {
		return s.limits.MinPrice
	}
	if next.GreaterThan(s.limits.MaxPrice) {
		return s.limits.MaxPrice
	}
	return next
}
