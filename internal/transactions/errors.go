package transactions

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-finance/internal/recurrence"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

var (
	// ErrTransactionNotFound indicates the transaction does not exist for the owner.
	ErrTransactionNotFound = fmt.Errorf("transaction %w", shared.ErrNotFound)
	// ErrNotSeriesParent is returned when a series operation targets a plain row.
	ErrNotSeriesParent error = shared.NewValidationError("transaction is not the parent of a recurring series")
)

// SeriesStateError rejects a series status change that is not allowed.
type SeriesStateError struct {
	From recurrence.Status
	To   recurrence.Status
}

func (e *SeriesStateError) Error() string {
	return fmt.Sprintf("cannot move series from %s to %s", e.From, e.To)
}

// Code identifies the error in API responses.
func (e *SeriesStateError) Code() string { return "invalid_state" }
