package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrBrokerConnection marks transport-layer broker failures. Retriable.
var ErrBrokerConnection = errors.New("broker connection failed")

// StockNotFoundError is returned when a symbol is not present in the
// market the broker executes against.
type StockNotFoundError struct {
	Symbol string
}

func (e *StockNotFoundError) Error() string {
	return fmt.Sprintf("stock %s not found", e.Symbol)
}

// OrderError wraps a failed broker primitive with the context the
// caller needs to correlate it with its batch.
type OrderError struct {
	Side        OrderSide
	Symbol      string
	OperationID uuid.UUID
	BatchID     *uuid.UUID
	Err         error
}

func (e *OrderError) Error() string {
	verb := "buy"
	if e.Side == OrderSideSell {
		verb = "sell"
	}
	if e.BatchID != nil {
		return fmt.Sprintf("%s %s failed (op %s, batch %s): %v", verb, e.Symbol, e.OperationID, *e.BatchID, e.Err)
	}
	return fmt.Sprintf("%s %s failed (op %s): %v", verb, e.Symbol, e.OperationID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}
