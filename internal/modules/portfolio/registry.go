package portfolio

import (
	"context"
	"sync"
	"weak"

	"github.com/rs/zerolog"

	"github.com/openfolio/rebalancer/internal/modules/stock"
)

// Registry maps symbols to the portfolios holding them so a price
// change fans out to exactly the affected portfolios.
//
// Membership is non-owning: entries are weak pointers, so a portfolio
// dropped by all external holders becomes reclaimable even if nobody
// called Unregister. Dead entries are pruned lazily on lookup. The
// registry never extends a portfolio's lifetime.
//
// Multiple independent registries may coexist; tests inject isolated
// ones.
type Registry struct {
	log zerolog.Logger

	mu      sync.RWMutex
	members map[string]map[string]weak.Pointer[Portfolio] // symbol -> portfolio id -> ref
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:     log.With().Str("service", "registry").Logger(),
		members: make(map[string]map[string]weak.Pointer[Portfolio]),
	}
}

// Register records the portfolio under each of its allocated symbols.
func (r *Registry) Register(p *Portfolio) {
	ref := weak.Make(p)
	symbols := p.AllocatedSymbols()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, symbol := range symbols {
		bucket, ok := r.members[symbol]
		if !ok {
			bucket = make(map[string]weak.Pointer[Portfolio])
			r.members[symbol] = bucket
		}
		bucket[p.ID()] = ref
	}
	r.log.Debug().Str("portfolio", p.Name()).Strs("symbols", symbols).Msg("portfolio registered")
}

// Unregister removes all membership entries for the portfolio.
func (r *Registry) Unregister(p *Portfolio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for symbol, bucket := range r.members {
		delete(bucket, p.ID())
		if len(bucket) == 0 {
			delete(r.members, symbol)
		}
	}
}

// GetBySymbol returns the live portfolios currently holding the
// symbol. Entries whose portfolio has been reclaimed are pruned.
func (r *Registry) GetBySymbol(symbol string) []*Portfolio {
	r.mu.RLock()
	bucket := r.members[symbol]
	live := make([]*Portfolio, 0, len(bucket))
	var dead []string
	for id, ref := range bucket {
		if p := ref.Value(); p != nil {
			live = append(live, p)
		} else {
			dead = append(dead, id)
		}
	}
	r.mu.RUnlock()

	if len(dead) > 0 {
		r.mu.Lock()
		if bucket, ok := r.members[symbol]; ok {
			for _, id := range dead {
				if ref, ok := bucket[id]; ok && ref.Value() == nil {
					delete(bucket, id)
				}
			}
			if len(bucket) == 0 {
				delete(r.members, symbol)
			}
		}
		r.mu.Unlock()
	}
	return live
}

// OnPriceChange dispatches Rebalance to every portfolio holding the
// changed symbol, concurrently. One portfolio's failure is logged and
// does not affect another; there is no recovery here beyond the state
// each portfolio already recorded.
func (r *Registry) OnPriceChange(ctx context.Context, change stock.PriceChange) {
	affected := r.GetBySymbol(change.Symbol)
	if len(affected) == 0 {
		return
	}

	r.log.Info().
		Str("symbol", change.Symbol).
		Str("percent", change.Percent.String()).
		Int("portfolios", len(affected)).
		Msg("price change dispatch")

	var wg sync.WaitGroup
	for _, p := range affected {
		wg.Add(1)
		go func(p *Portfolio) {
			defer wg.Done()
			if err := p.Rebalance(ctx); err != nil {
				r.log.Warn().
					Str("portfolio", p.Name()).
					Str("symbol", change.Symbol).
					Err(err).
					Msg("rebalance failed")
			}
		}(p)
	}
	wg.Wait()
}
