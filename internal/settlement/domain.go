// Package settlement applies payments (baixas) to payables and receivables
// and derives the resulting transaction status.
package settlement

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Status is the stored state of a payable or receivable.
type Status string

const (
	StatusPendente  Status = "pendente"
	StatusParcial   Status = "parcial"
	StatusPago      Status = "pago"
	StatusVencido   Status = "vencido"
	StatusCancelado Status = "cancelado"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusPendente, StatusParcial, StatusPago, StatusVencido, StatusCancelado:
		return s, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", raw)
	}
}

// Open reports whether the transaction may still receive payments.
func (s Status) Open() bool {
	switch s {
	case StatusPendente, StatusParcial, StatusVencido:
		return true
	case StatusPago, StatusCancelado:
		return false
	default:
		return false
	}
}

// Method is how a payment was made.
type Method string

const (
	MethodDinheiro      Method = "dinheiro"
	MethodPix           Method = "pix"
	MethodBoleto        Method = "boleto"
	MethodTransferencia Method = "transferencia"
	MethodCartaoCredito Method = "cartao_credito"
	MethodCartaoDebito  Method = "cartao_debito"
	MethodCheque        Method = "cheque"
	MethodOutro         Method = "outro"
)

// Methods lists every accepted payment method.
var Methods = []Method{
	MethodDinheiro, MethodPix, MethodBoleto, MethodTransferencia,
	MethodCartaoCredito, MethodCartaoDebito, MethodCheque, MethodOutro,
}

// Valid reports whether the method is known.
func (m Method) Valid() bool {
	return slices.Contains(Methods, m)
}

// Transaction is the settlement view of a payable or receivable.
type Transaction struct {
	ID            int64                  `json:"id"`
	OwnerID       int64                  `json:"owner_id"`
	Kind          shared.TransactionKind `json:"kind"`
	TotalAmount   decimal.Decimal        `json:"total_amount"`
	AmountSettled decimal.Decimal        `json:"amount_settled"`
	Status        Status                 `json:"status"`
	DueDate       time.Time              `json:"due_date"`
}

// PaymentRecord is one immutable settlement entry.
type PaymentRecord struct {
	ID              int64                  `json:"id"`
	OwnerID         int64                  `json:"owner_id"`
	Reference       string                 `json:"reference"`
	TransactionKind shared.TransactionKind `json:"transaction_type"`
	TransactionID   int64                  `json:"transaction_id"`
	Method          Method                 `json:"method"`
	BankAccountID   *int64                 `json:"bank_account_id,omitempty"`
	Amount          decimal.Decimal        `json:"amount"`
	PaymentDate     time.Time              `json:"payment_date"`
	Note            string                 `json:"note,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// BalanceInstruction asks the bank-account ledger to move an account balance.
type BalanceInstruction struct {
	BankAccountID int64
	Delta         decimal.Decimal
}

// Result is the outcome of applying one payment.
type Result struct {
	AmountSettled decimal.Decimal
	Status        Status
	Remaining     decimal.Decimal
	// Applied is the part of the payment counted against the transaction.
	// It equals the payment unless the clamp policy trimmed an overpayment.
	Applied decimal.Decimal
}
