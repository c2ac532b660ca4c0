package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

var (
	// ErrTransactionNotFound indicates the transaction does not exist for the owner.
	ErrTransactionNotFound = fmt.Errorf("transaction %w", shared.ErrNotFound)
	// ErrBankAccountNotFound indicates the referenced bank account does not exist for the owner.
	ErrBankAccountNotFound = fmt.Errorf("bank account %w", shared.ErrNotFound)
)

// InvalidStateError rejects an operation on a transaction in a terminal state.
type InvalidStateError struct {
	Operation string
	Status    Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a transaction with status %s", e.Operation, e.Status)
}

// Code identifies the error in API responses.
func (e *InvalidStateError) Code() string { return "invalid_state" }

// OverpaymentError rejects a payment larger than the remaining balance.
type OverpaymentError struct {
	Total     decimal.Decimal
	Settled   decimal.Decimal
	Payment   decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds remaining balance of %s", e.Payment.StringFixed(2), e.Remaining.StringFixed(2))
}

// Code identifies the error in API responses.
func (e *OverpaymentError) Code() string { return "overpayment" }
