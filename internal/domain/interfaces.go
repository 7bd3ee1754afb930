package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Broker defines the order primitives the portfolio engine consumes.
// Every primitive records its outcome in the broker's batch table when
// the request carries a batch id; the batch is the atomicity boundary.
//
// Primitives are idempotent relative to the operation id: re-issuing a
// previously recorded (batch id, operation id) pair returns the stored
// outcome without re-executing.
type Broker interface {
	// BuyByAmount buys at most the requested cash amount of the symbol
	// at the current market price.
	BuyByAmount(ctx context.Context, req OrderRequest) (OrderOutcome, error)

	// BuyByQuantity buys exactly the requested share quantity at the
	// current market price.
	BuyByQuantity(ctx context.Context, req OrderRequest) (OrderOutcome, error)

	// SellByAmount sells at most the requested cash amount of the symbol.
	SellByAmount(ctx context.Context, req OrderRequest) (OrderOutcome, error)

	// SellByQuantity sells exactly the requested share quantity.
	SellByQuantity(ctx context.Context, req OrderRequest) (OrderOutcome, error)

	// RollbackBatch reverses the successful operations of a batch by
	// issuing quantity-based inverse orders. Returns true when every
	// successful operation was reversed (or there was nothing to undo).
	RollbackBatch(ctx context.Context, batchID uuid.UUID) bool

	// DiscardBatch drops a batch from the table without compensation.
	// Called by the portfolio once a batch has been committed.
	DiscardBatch(batchID uuid.UUID)
}

// Market is the price source the broker executes against. The broker
// treats it as opaque; implementations range from the in-memory demo
// market to a live feed.
type Market interface {
	// PriceOf returns the current price for the symbol.
	PriceOf(symbol string) (decimal.Decimal, error)

	// Has reports whether the symbol is listed.
	Has(symbol string) bool
}
