// Package decimals owns the fixed-point scales used for money, share
// quantities and allocation percentages. All arithmetic runs at full
// precision; quantization happens when a value is assigned or compared.
package decimals

import "github.com/shopspring/decimal"

// Scales, in decimal places. Money is USD cents, quantities support
// fractional shares down to a billionth, percentages are stored as a
// fraction of 1 at four places (0.0001 = 0.01%).
const (
	MoneyScale    int32 = 2
	QuantityScale int32 = 9
	PercentScale  int32 = 4
)

// Ticks are the smallest representable step at each scale.
var (
	MoneyTick    = decimal.New(1, -MoneyScale)
	QuantityTick = decimal.New(1, -QuantityScale)
	PercentTick  = decimal.New(1, -PercentScale)
)

// QuantizeMoney rounds a USD amount half-up to the money scale.
func QuantizeMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// QuantizeQuantity rounds a share quantity half-up to the quantity scale.
func QuantizeQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

// QuantizePercent rounds a fraction-of-1 percentage half-up to the
// percent scale.
func QuantizePercent(d decimal.Decimal) decimal.Decimal {
	return d.Round(PercentScale)
}

// EqualAtMoneyScale reports whether two amounts are indistinguishable
// once quantized to the money scale.
func EqualAtMoneyScale(a, b decimal.Decimal) bool {
	return QuantizeMoney(a).Equal(QuantizeMoney(b))
}
