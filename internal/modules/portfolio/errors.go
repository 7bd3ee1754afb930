package portfolio

import (
	"fmt"

	"github.com/openfolio/rebalancer/internal/domain"
)

// StaleError is terminal: a rollback failed and the portfolio's
// holdings are known to be inconsistent with broker state. All
// mutating operations are rejected until operator intervention.
type StaleError struct {
	Portfolio string
	Failed    []domain.OrderOutcome // the failures that led here, if any
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("portfolio %q is stale: manual recovery required", e.Portfolio)
}

// InitializationError reports that one or more opening orders failed
// and the batch was rolled back successfully.
type InitializationError struct {
	Portfolio string
	Failed    []domain.OrderOutcome
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("portfolio %q initialization failed: %d operations failed, batch rolled back",
		e.Portfolio, len(e.Failed))
}

// RetryError reports a failed rebalance whose batch was rolled back
// successfully. Attempt counts consecutive failed rebalances.
type RetryError struct {
	Portfolio string
	Failed    []domain.OrderOutcome
	Attempt   int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("portfolio %q rebalance failed (attempt %d): %d operations failed, batch rolled back",
		e.Portfolio, e.Attempt, len(e.Failed))
}
