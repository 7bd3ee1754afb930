package stock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/rebalancer/pkg/logger"
)

type recordingListener struct {
	changes []PriceChange
}

func (l *recordingListener) OnPriceChange(_ context.Context, change PriceChange) {
	l.changes = append(l.changes, change)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNew_SymbolValidation(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		valid  bool
	}{
		{"four uppercase letters", "AAAA", true},
		{"mixed letters", "ABCD", true},
		{"lowercase", "aaaa", false},
		{"three letters", "AAA", false},
		{"five letters", "AAAAA", false},
		{"digits", "AAA1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.symbol, d("100"), DefaultLimits(), logger.Nop())
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.symbol, s.Symbol())
			} else {
				var symErr *InvalidSymbolError
				require.ErrorAs(t, err, &symErr)
				assert.Equal(t, tt.symbol, symErr.Symbol)
			}
		})
	}
}

func TestNew_PriceValidation(t *testing.T) {
	tests := []struct {
		name  string
		price string
		valid bool
	}{
		{"normal price", "250", true},
		{"minimum price", "0.01", true},
		{"maximum price", "1000000", true},
		{"below minimum", "0.005", false},
		{"above maximum", "1000000.01", false},
		{"zero", "0", false},
		{"negative", "-5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("AAAA", d(tt.price), DefaultLimits(), logger.Nop())
			if tt.valid {
				assert.NoError(t, err)
			} else {
				var priceErr *InvalidPriceError
				assert.ErrorAs(t, err, &priceErr)
			}
		})
	}
}

func TestSetPrice_RejectsOutOfBounds(t *testing.T) {
	s, err := New("AAAA", d("250"), DefaultLimits(), logger.Nop())
	require.NoError(t, err)

	var priceErr *InvalidPriceError
	assert.ErrorAs(t, s.SetPrice(context.Background(), d("0")), &priceErr)
	assert.ErrorAs(t, s.SetPrice(context.Background(), d("2000000")), &priceErr)
	assert.Equal(t, "250", s.Price().String())
}

func TestSetPrice_EqualAtMoneyScaleIsNoOp(t *testing.T) {
	s, err := New("AAAA", d("250"), DefaultLimits(), logger.Nop())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.Subscribe(listener)

	// 250.004 quantizes to 250.00, same as the stored price
	require.NoError(t, s.SetPrice(context.Background(), d("250.004")))
	assert.Equal(t, "250", s.Price().String())
	assert.Empty(t, listener.changes)
}

func TestSetPrice_BelowThresholdDoesNotNotify(t *testing.T) {
	s, err := New("AAAA", d("250"), DefaultLimits(), logger.Nop())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.Subscribe(listener)

	// 250 -> 252 is a 0.8% move, below the 1% alert threshold
	require.NoError(t, s.SetPrice(context.Background(), d("252")))
	assert.Equal(t, "252", s.Price().String())
	assert.Empty(t, listener.changes)
}

func TestSetPrice_AtThresholdNotifies(t *testing.T) {
	s, err := New("AAAA", d("250"), DefaultLimits(), logger.Nop())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.Subscribe(listener)

	// 250 -> 252.50 is exactly 1%
	require.NoError(t, s.SetPrice(context.Background(), d("252.50")))
	require.Len(t, listener.changes, 1)

	change := listener.changes[0]
	assert.Equal(t, "AAAA", change.Symbol)
	assert.Equal(t, "250", change.Old.String())
	assert.Equal(t, "252.5", change.New.String())
	assert.Equal(t, "0.01", change.Percent.String())
}

func TestSetPrice_DownMoveNotifies(t *testing.T) {
	s, err := New("BBBB", d("150"), DefaultLimits(), logger.Nop())
	require.NoError(t, err)

	listener := &recordingListener{}
	s.Subscribe(listener)

	require.NoError(t, s.SetPrice(context.Background(), d("120")))
	require.Len(t, listener.changes, 1)
	assert.Equal(t, "-0.2", listener.changes[0].Percent.String())
}

func TestSetPrice_NilListener(t *testing.T) {
	s, err := New("AAAA", d("250"), DefaultLimits(), logger.Nop())
	require.NoError(t, err)

	// no listener subscribed, large move must not panic
	require.NoError(t, s.SetPrice(context.Background(), d("500")))
	assert.Equal(t, "500", s.Price().String())
}
