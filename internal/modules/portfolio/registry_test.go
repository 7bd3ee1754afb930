package portfolio

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/rebalancer/internal/modules/broker"
	"github.com/openfolio/rebalancer/internal/modules/stock"
	"github.com/openfolio/rebalancer/pkg/logger"
)

func TestRegistry_DispatchOnPriceChange(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(logger.Nop())

	aaaa := mustStock(t, "AAAA", "250")
	bbbb := mustStock(t, "BBBB", "150")
	cccc := mustStock(t, "CCCC", "600")
	dddd := mustStock(t, "DDDD", "100")
	for _, s := range []*stock.Stock{aaaa, bbbb, cccc, dddd} {
		s.Subscribe(reg)
	}

	// each portfolio trades through its own broker so order activity
	// can be attributed per portfolio
	newMember := func(name string, allocations []Allocation) (*Portfolio, *stockMarket) {
		m := newStockMarket(aaaa, bbbb, cccc, dddd)
		p, err := New(Config{
			Name:              name,
			InitialInvestment: d("10000"),
			Broker:            broker.New(m, testBrokerConfig(), logger.Nop()),
			Registry:          reg,
			Allocations:       allocations,
		}, DefaultLimits(), logger.Nop())
		require.NoError(t, err)
		require.NoError(t, p.Initialize(ctx))
		return p, m
	}

	p1, m1 := newMember("p1", []Allocation{
		{Stock: aaaa, Percent: d("0.5")},
		{Stock: bbbb, Percent: d("0.5")},
	})
	p2, m2 := newMember("p2", []Allocation{
		{Stock: bbbb, Percent: d("0.5")},
		{Stock: cccc, Percent: d("0.5")},
	})
	p3, m3 := newMember("p3", []Allocation{
		{Stock: cccc, Percent: d("0.6")},
		{Stock: dddd, Percent: d("0.4")},
	})

	calls := func() [3]int { return [3]int{m1.calls(), m2.calls(), m3.calls()} }
	before := calls()

	// +50% on BBBB reaches the holders of BBBB and nobody else
	require.NoError(t, bbbb.SetPrice(ctx, d("225")))

	after := calls()
	assert.Greater(t, after[0], before[0], "p1 holds BBBB and must rebalance")
	assert.Greater(t, after[1], before[1], "p2 holds BBBB and must rebalance")
	assert.Equal(t, before[2], after[2], "p3 does not hold BBBB")
	for _, deviation := range p1.Deviations() {
		assert.True(t, deviation.LessThan(d("0.0001")))
	}
	for _, deviation := range p2.Deviations() {
		assert.True(t, deviation.LessThan(d("0.0001")))
	}

	// +50% on DDDD reaches only p3
	before = calls()
	require.NoError(t, dddd.SetPrice(ctx, d("150")))
	after = calls()
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[1], after[1])
	assert.Greater(t, after[2], before[2])
	for _, deviation := range p3.Deviations() {
		assert.True(t, deviation.LessThan(d("0.0001")))
	}

	// a move under the alert threshold never reaches the registry
	before = calls()
	require.NoError(t, aaaa.SetPrice(ctx, d("251")))
	assert.Equal(t, before, calls())
}

func TestRegistry_Unregister(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(logger.Nop())
	aaaa := mustStock(t, "AAAA", "100")

	member := func(name string) *Portfolio {
		p, err := New(Config{
			Name:              name,
			InitialInvestment: d("1000"),
			Broker:            newFakeBroker(),
			Registry:          reg,
			Allocations:       []Allocation{{Stock: aaaa, Percent: d("1")}},
		}, DefaultLimits(), logger.Nop())
		require.NoError(t, err)
		require.NoError(t, p.Initialize(ctx))
		return p
	}

	p1 := member("p1")
	p2 := member("p2")
	require.Len(t, reg.GetBySymbol("AAAA"), 2)

	reg.Unregister(p1)
	members := reg.GetBySymbol("AAAA")
	require.Len(t, members, 1)
	assert.Same(t, p2, members[0])

	reg.Unregister(p2)
	assert.Empty(t, reg.GetBySymbol("AAAA"))
}

func TestRegistry_MembershipDoesNotKeepPortfoliosAlive(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(logger.Nop())
	aaaa := mustStock(t, "AAAA", "100")

	func() {
		p, err := New(Config{
			Name:              "transient",
			InitialInvestment: d("1000"),
			Broker:            newFakeBroker(),
			Registry:          reg,
			Allocations:       []Allocation{{Stock: aaaa, Percent: d("1")}},
		}, DefaultLimits(), logger.Nop())
		require.NoError(t, err)
		require.NoError(t, p.Initialize(ctx))
		require.Len(t, reg.GetBySymbol("AAAA"), 1)
	}()

	// the registry held the only remaining reference, weakly
	runtime.GC()
	runtime.GC()
	assert.Empty(t, reg.GetBySymbol("AAAA"))
}
