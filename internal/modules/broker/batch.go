package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/openfolio/rebalancer/internal/domain"
)

// batchEntry is one operation's slot in the batch table.
type batchEntry struct {
	outcome          domain.OrderOutcome
	rollbackAttempts int
}

// recordedOutcome returns the stored outcome for a (batch, operation)
// pair when it has already reached a terminal state. This is the
// idempotency guarantee: re-issuing a recorded operation id within a
// still-live batch does not re-execute.
func (b *Broker) recordedOutcome(req domain.OrderRequest) (domain.OrderOutcome, bool) {
	if req.BatchID == nil {
		return domain.OrderOutcome{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ops, ok := b.batches[*req.BatchID]
	if !ok {
		return domain.OrderOutcome{}, false
	}
	entry, ok := ops[req.OperationID]
	if !ok || entry.outcome.State == domain.StatePending {
		return domain.OrderOutcome{}, false
	}
	return entry.outcome, true
}

// registerPending creates the operation's slot before execution so the
// batch records every operation the broker processes.
func (b *Broker) registerPending(req domain.OrderRequest) {
	if req.BatchID == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ops, ok := b.batches[*req.BatchID]
	if !ok {
		ops = make(map[uuid.UUID]*batchEntry)
		b.batches[*req.BatchID] = ops
	}
	ops[req.OperationID] = &batchEntry{
		outcome: domain.OrderOutcome{Request: req, State: domain.StatePending},
	}
}

// record stores the final outcome. Operations without a batch id are
// stand-alone and leave no residual state.
func (b *Broker) record(req domain.OrderRequest, outcome domain.OrderOutcome) {
	if req.BatchID == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ops, ok := b.batches[*req.BatchID]
	if !ok {
		return
	}
	if entry, ok := ops[req.OperationID]; ok {
		entry.outcome = outcome
		return
	}
	ops[req.OperationID] = &batchEntry{outcome: outcome}
}

// markRolledBack flips a successful operation to rolled_back. The flag
// never transitions back.
func (b *Broker) markRolledBack(batchID, operationID uuid.UUID, attempts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops, ok := b.batches[batchID]
	if !ok {
		return
	}
	if entry, ok := ops[operationID]; ok {
		entry.outcome.State = domain.StateRolledBack
		entry.outcome.RolledBack = true
		entry.rollbackAttempts = attempts
	}
}

func (b *Broker) noteRollbackAttempts(batchID, operationID uuid.UUID, attempts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ops, ok := b.batches[batchID]; ok {
		if entry, ok := ops[operationID]; ok {
			entry.rollbackAttempts = attempts
		}
	}
}

// RollbackBatch reverses the successful operations of a batch with
// quantity-based inverse orders: a buy becomes a sell of the realized
// quantity at the current price and vice versa, so the share count
// returns exactly to the pre-batch state. Cash-value drift from moving
// prices is accepted and self-corrects on the next rebalance.
//
// Returns true when every successful operation was reversed. An
// unknown batch id means there is nothing to undo and also returns
// true. A fully reversed batch is removed from the table; a partially
// reversed one is retained so the call can be retried.
func (b *Broker) RollbackBatch(ctx context.Context, batchID uuid.UUID) bool {
	b.mu.Lock()
	ops, ok := b.batches[batchID]
	if !ok {
		b.mu.Unlock()
		return true
	}
	toReverse := make([]domain.OrderOutcome, 0, len(ops))
	for _, entry := range ops {
		// Compensating orders are never themselves reversed.
		if entry.outcome.Request.Rollback {
			continue
		}
		if entry.outcome.State == domain.StateSuccess && !entry.outcome.RolledBack {
			toReverse = append(toReverse, entry.outcome)
		}
	}
	b.mu.Unlock()

	if len(toReverse) == 0 {
		b.DiscardBatch(batchID)
		return true
	}

	allReversed := true
	for _, original := range toReverse {
		if b.reverse(ctx, batchID, original) {
			continue
		}
		allReversed = false
		b.log.Error().
			Str("batch_id", batchID.String()).
			Str("operation_id", original.Request.OperationID.String()).
			Int("attempts", b.cfg.RollbackMaxAttempts).
			Msg("failed to roll back operation")
	}

	if allReversed {
		b.DiscardBatch(batchID)
	}
	return allReversed
}

// reverse executes the inverse of one successful operation with a
// bounded retry budget and backoff between attempts.
func (b *Broker) reverse(ctx context.Context, batchID uuid.UUID, original domain.OrderOutcome) bool {
	retry := &backoff.Backoff{
		Min:    b.cfg.RollbackRetryMin,
		Max:    b.cfg.RollbackRetryMax,
		Factor: 2,
		Jitter: true,
	}

	maxAttempts := b.cfg.RollbackMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		inverse := inverseRequest(batchID, original)

		var err error
		if inverse.Side == domain.OrderSideSell {
			_, err = b.SellByQuantity(ctx, inverse)
		} else {
			_, err = b.BuyByQuantity(ctx, inverse)
		}
		if err == nil {
			b.markRolledBack(batchID, original.Request.OperationID, attempt)
			return true
		}

		b.noteRollbackAttempts(batchID, original.Request.OperationID, attempt)
		b.log.Warn().
			Str("batch_id", batchID.String()).
			Str("operation_id", original.Request.OperationID.String()).
			Int("attempt", attempt).
			Err(err).
			Msg("rollback attempt failed")

		if attempt < maxAttempts {
			if sleepErr := sleepCtx(ctx, retry.Duration()); sleepErr != nil {
				return false
			}
		}
	}
	return false
}

// inverseRequest derives the compensating order. The inverse is sized
// by the realized quantity, not the cash amount: at-amount inversion
// drifts when the price has moved, at-quantity inversion restores the
// share count exactly.
func inverseRequest(batchID uuid.UUID, original domain.OrderOutcome) domain.OrderRequest {
	id := batchID
	var inverse domain.OrderRequest
	if original.Request.Side == domain.OrderSideBuy {
		inverse = domain.NewSellByQuantity(original.Request.Symbol, original.Quantity, &id)
	} else {
		inverse = domain.NewBuyByQuantity(original.Request.Symbol, original.Quantity, &id)
	}
	inverse.Rollback = true
	return inverse
}

// DiscardBatch drops a batch without compensation. The portfolio calls
// this after committing a fully successful batch so the table does not
// grow without bound.
func (b *Broker) DiscardBatch(batchID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.batches, batchID)
}

// BatchSnapshot returns a copy of the recorded outcomes for a batch.
func (b *Broker) BatchSnapshot(batchID uuid.UUID) ([]domain.OrderOutcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops, ok := b.batches[batchID]
	if !ok {
		return nil, false
	}
	outcomes := make([]domain.OrderOutcome, 0, len(ops))
	for _, entry := range ops {
		outcomes = append(outcomes, entry.outcome)
	}
	return outcomes, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
