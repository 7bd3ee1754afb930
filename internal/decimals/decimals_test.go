package decimals

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestQuantizeMoney(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"already at scale", "10.25", "10.25"},
		{"half rounds up", "10.255", "10.26"},
		{"below half rounds down", "10.254", "10.25"},
		{"integer unchanged", "4000", "4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decimal.RequireFromString(tt.in)
			assert.Equal(t, tt.expected, QuantizeMoney(in).String())
		})
	}
}

func TestQuantizeQuantity(t *testing.T) {
	// 2000 / 150 = 13.3333333333... truncates to nine places
	qty := decimal.RequireFromString("2000").Div(decimal.RequireFromString("150"))
	assert.Equal(t, "13.333333333", QuantizeQuantity(qty).String())

	// 4000 / 600 = 6.6666666666... rounds the ninth place up
	qty = decimal.RequireFromString("4000").Div(decimal.RequireFromString("600"))
	assert.Equal(t, "6.666666667", QuantizeQuantity(qty).String())
}

func TestQuantizePercent(t *testing.T) {
	assert.Equal(t, "0.3333", QuantizePercent(decimal.RequireFromString("0.33334")).String())
	assert.Equal(t, "0.4", QuantizePercent(decimal.RequireFromString("0.4")).String())
}

func TestEqualAtMoneyScale(t *testing.T) {
	a := decimal.RequireFromString("250.004")
	b := decimal.RequireFromString("250.001")
	assert.True(t, EqualAtMoneyScale(a, b))

	c := decimal.RequireFromString("250.01")
	assert.False(t, EqualAtMoneyScale(a, c))
}

func TestTicks(t *testing.T) {
	assert.Equal(t, "0.01", MoneyTick.String())
	assert.Equal(t, "0.000000001", QuantityTick.String())
	assert.Equal(t, "0.0001", PercentTick.String())
}
