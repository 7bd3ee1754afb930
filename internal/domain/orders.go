// Package domain provides the shared order model and the interfaces
// that decouple the portfolio engine from broker and market
// implementations.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderSizing says whether an order is sized in cash or in shares.
type OrderSizing string

const (
	SizingByAmount   OrderSizing = "BY_AMOUNT"
	SizingByQuantity OrderSizing = "BY_QUANTITY"
)

// OperationState tracks an operation inside a batch.
//
// pending -> success -> rolled_back
// pending -> error              (never rolled back; never succeeded)
type OperationState string

const (
	StatePending    OperationState = "PENDING"
	StateSuccess    OperationState = "SUCCESS"
	StateError      OperationState = "ERROR"
	StateRolledBack OperationState = "ROLLED_BACK"
)

// OrderRequest describes one broker primitive invocation. Amount is set
// for by-amount orders, Quantity for by-quantity orders, never both.
// A nil BatchID means the operation executes stand-alone and leaves no
// residual state in the broker.
type OrderRequest struct {
	OperationID uuid.UUID
	BatchID     *uuid.UUID
	Symbol      string
	Side        OrderSide
	Sizing      OrderSizing
	Amount      decimal.Decimal
	Quantity    decimal.Decimal
	Rollback    bool // true for compensating orders issued during a batch rollback
}

// NewBuyByAmount builds a buy order sized by cash amount.
func NewBuyByAmount(symbol string, amount decimal.Decimal, batchID *uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        OrderSideBuy,
		Sizing:      SizingByAmount,
		Amount:      amount,
	}
}

// NewBuyByQuantity builds a buy order sized by share quantity.
func NewBuyByQuantity(symbol string, quantity decimal.Decimal, batchID *uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        OrderSideBuy,
		Sizing:      SizingByQuantity,
		Quantity:    quantity,
	}
}

// NewSellByAmount builds a sell order sized by cash amount.
func NewSellByAmount(symbol string, amount decimal.Decimal, batchID *uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        OrderSideSell,
		Sizing:      SizingByAmount,
		Amount:      amount,
	}
}

// NewSellByQuantity builds a sell order sized by share quantity.
func NewSellByQuantity(symbol string, quantity decimal.Decimal, batchID *uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        OrderSideSell,
		Sizing:      SizingByQuantity,
		Quantity:    quantity,
	}
}

// OrderOutcome records what actually happened to an order. The broker
// is authoritative: the portfolio trusts the realized Quantity and
// Amount regardless of what was requested.
type OrderOutcome struct {
	Request    OrderRequest
	State      OperationState
	Price      decimal.Decimal // execution price per share
	Quantity   decimal.Decimal // realized share quantity, quantity scale
	Amount     decimal.Decimal // realized cash amount, money scale
	Err        error           // non-nil when State is StateError
	RolledBack bool            // set once a successful operation has been reversed
	ExecutedAt time.Time
}

// Succeeded reports whether the operation completed and has not been
// reversed.
func (o OrderOutcome) Succeeded() bool {
	return o.State == StateSuccess
}
