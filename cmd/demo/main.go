// Package main runs the rebalancing engine against a simulated market:
// a handful of listed stocks on a random walk, three portfolios with
// overlapping allocations, and price-change dispatch driving them back
// to target.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/openfolio/rebalancer/internal/config"
	"github.com/openfolio/rebalancer/internal/market"
	"github.com/openfolio/rebalancer/internal/modules/broker"
	"github.com/openfolio/rebalancer/internal/modules/portfolio"
	"github.com/openfolio/rebalancer/internal/modules/stock"
	"github.com/openfolio/rebalancer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Msg("Starting rebalancer demo")

	mkt := market.New(log)
	registry := portfolio.NewRegistry(log)

	listings := []struct {
		symbol string
		price  string
	}{
		{"AAAA", "250"},
		{"BBBB", "150"},
		{"CCCC", "600"},
		{"DDDD", "75"},
	}
	for _, l := range listings {
		s, err := stock.New(l.symbol, decimal.RequireFromString(l.price), cfg.StockLimits(), log)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", l.symbol).Msg("Failed to create stock")
		}
		s.Subscribe(registry)
		if err := mkt.Add(s); err != nil {
			log.Fatal().Err(err).Str("symbol", l.symbol).Msg("Failed to list stock")
		}
	}

	brk := broker.New(mkt, cfg.BrokerConfig(), log)

	portfolios := []struct {
		name        string
		investment  string
		allocations map[string]string
	}{
		{"balanced", "10000", map[string]string{"AAAA": "0.4", "BBBB": "0.2", "CCCC": "0.4"}},
		{"growth", "25000", map[string]string{"BBBB": "0.5", "CCCC": "0.5"}},
		{"concentrated", "5000", map[string]string{"CCCC": "0.7", "DDDD": "0.3"}},
	}

	ctx := context.Background()
	managed := make([]*portfolio.Portfolio, 0, len(portfolios))
	for _, spec := range portfolios {
		allocations := make([]portfolio.Allocation, 0, len(spec.allocations))
		for symbol, percent := range spec.allocations {
			s, ok := mkt.Get(symbol)
			if !ok {
				log.Fatal().Str("symbol", symbol).Msg("Allocation references unlisted symbol")
			}
			allocations = append(allocations, portfolio.Allocation{
				Stock:   s,
				Percent: decimal.RequireFromString(percent),
			})
		}

		p, err := portfolio.New(portfolio.Config{
			Name:              spec.name,
			InitialInvestment: decimal.RequireFromString(spec.investment),
			Broker:            brk,
			Registry:          registry,
			Allocations:       allocations,
		}, cfg.PortfolioLimits(), log)
		if err != nil {
			log.Fatal().Err(err).Str("portfolio", spec.name).Msg("Invalid portfolio config")
		}
		if err := p.Initialize(ctx); err != nil {
			log.Fatal().Err(err).Str("portfolio", spec.name).Msg("Failed to initialize portfolio")
		}
		managed = append(managed, p)
	}

	var sim *market.Simulator
	if !cfg.SimulatorDisabled {
		sim, err = market.NewSimulator(mkt, cfg.SimulatorSpec, cfg.SimulatorMaxStep, cfg.StockLimits(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create simulator")
		}
		sim.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	if sim != nil {
		sim.Stop()
	}

	for _, p := range managed {
		event := log.Info().
			Str("portfolio", p.Name()).
			Str("total", p.TotalValue().String()).
			Bool("stale", p.Stale())
		for _, h := range p.Holdings() {
			event = event.Str(h.Symbol, h.Quantity.String())
		}
		event.Msg("Final holdings")
	}
	log.Info().Msg("Shutdown complete")
}
