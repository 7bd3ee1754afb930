package stock

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvalidSymbolError is returned when a symbol does not match the
// four-uppercase-letter rule.
type InvalidSymbolError struct {
	Symbol string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q: must be exactly four uppercase letters", e.Symbol)
}

// InvalidPriceError is returned when a price is non-positive or
// outside the configured bounds.
type InvalidPriceError struct {
	Symbol string
	Price  decimal.Decimal
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %s for %s: %s", e.Price, e.Symbol, e.Reason)
}
