package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// OverpaymentPolicy decides what happens to payments above the remaining balance.
type OverpaymentPolicy string

const (
	// OverpaymentReject fails with OverpaymentError.
	OverpaymentReject OverpaymentPolicy = "reject"
	// OverpaymentClamp applies only the remaining balance.
	OverpaymentClamp OverpaymentPolicy = "clamp"
)

// ParseOverpaymentPolicy validates a configured policy name.
func ParseOverpaymentPolicy(raw string) (OverpaymentPolicy, error) {
	switch p := OverpaymentPolicy(raw); p {
	case OverpaymentReject, OverpaymentClamp:
		return p, nil
	case "":
		return OverpaymentReject, nil
	default:
		return "", fmt.Errorf("unknown overpayment policy %q", raw)
	}
}

// Machine runs settlement transitions under an overpayment policy.
type Machine struct {
	Policy OverpaymentPolicy
}

// ApplySettlement applies a payment with the reject policy.
func ApplySettlement(txn Transaction, paymentAmount decimal.Decimal) (Result, error) {
	return Machine{Policy: OverpaymentReject}.Apply(txn, paymentAmount)
}

// Apply adds paymentAmount to the amount already settled and derives the new
// status: pago once the settled amount reaches the total (within the
// tolerance), parcial otherwise.
func (m Machine) Apply(txn Transaction, paymentAmount decimal.Decimal) (Result, error) {
	if !txn.Status.Open() {
		return Result{}, &InvalidStateError{Operation: "settle", Status: txn.Status}
	}
	if !paymentAmount.IsPositive() {
		return Result{}, shared.NewValidationError("payment amount must be greater than zero")
	}
	payment := shared.RoundMoney(paymentAmount)
	if !payment.IsPositive() {
		return Result{}, shared.NewValidationError("payment amount must be at least 0.01")
	}

	total := txn.TotalAmount
	newSettled := txn.AmountSettled.Add(payment)
	applied := payment
	if newSettled.GreaterThan(total.Add(shared.Tolerance)) {
		switch m.policy() {
		case OverpaymentClamp:
			applied = decimal.Max(total.Sub(txn.AmountSettled), decimal.Zero)
			newSettled = total
		case OverpaymentReject:
			return Result{}, &OverpaymentError{
				Total:     total,
				Settled:   txn.AmountSettled,
				Payment:   payment,
				Remaining: RemainingBalance(txn),
			}
		default:
			return Result{}, fmt.Errorf("settlement: unknown overpayment policy %q", m.Policy)
		}
	}

	status := StatusParcial
	if newSettled.GreaterThanOrEqual(total.Sub(shared.Tolerance)) {
		status = StatusPago
		// Within-tolerance surplus is not carried: settled never exceeds total.
		if newSettled.GreaterThan(total) {
			newSettled = total
			applied = newSettled.Sub(txn.AmountSettled)
		}
	}
	// Payment rows must be positive; nothing left to settle is an overpayment.
	if !applied.IsPositive() {
		return Result{}, &OverpaymentError{
			Total:     total,
			Settled:   txn.AmountSettled,
			Payment:   payment,
			Remaining: RemainingBalance(txn),
		}
	}
	after := txn
	after.AmountSettled = newSettled
	return Result{
		AmountSettled: newSettled,
		Status:        status,
		Remaining:     RemainingBalance(after),
		Applied:       applied,
	}, nil
}

func (m Machine) policy() OverpaymentPolicy {
	if m.Policy == "" {
		return OverpaymentReject
	}
	return m.Policy
}

// RemainingBalance is total minus settled, never below zero.
func RemainingBalance(txn Transaction) decimal.Decimal {
	return decimal.Max(txn.TotalAmount.Sub(txn.AmountSettled), decimal.Zero)
}

// Cancel moves an open transaction to cancelado.
func Cancel(txn Transaction) (Status, error) {
	if !txn.Status.Open() {
		return txn.Status, &InvalidStateError{Operation: "cancel", Status: txn.Status}
	}
	return StatusCancelado, nil
}

// DeriveStatus is the stored status implied by a total and settled amount.
func DeriveStatus(total, settled decimal.Decimal) Status {
	switch {
	case !settled.IsPositive():
		return StatusPendente
	case settled.GreaterThanOrEqual(total.Sub(shared.Tolerance)):
		return StatusPago
	default:
		return StatusParcial
	}
}

// DisplayStatus overlays vencido on open transactions whose due date is
// before today. It never changes what is stored.
func DisplayStatus(txn Transaction, today time.Time) Status {
	switch txn.Status {
	case StatusPendente, StatusParcial, StatusVencido:
		if !txn.DueDate.IsZero() && shared.DateOf(txn.DueDate).Before(shared.DateOf(today)) {
			return StatusVencido
		}
		if txn.Status == StatusVencido {
			return DeriveStatus(txn.TotalAmount, txn.AmountSettled)
		}
		return txn.Status
	case StatusPago, StatusCancelado:
		return txn.Status
	default:
		return txn.Status
	}
}

// BalanceAdjustment returns the ledger instruction for a settled amount:
// receivables credit the account, payables debit it. Nil when no account was given.
func BalanceAdjustment(kind shared.TransactionKind, bankAccountID *int64, amount decimal.Decimal) (*BalanceInstruction, error) {
	if bankAccountID == nil || amount.IsZero() {
		return nil, nil
	}
	switch kind {
	case shared.KindReceivable:
		return &BalanceInstruction{BankAccountID: *bankAccountID, Delta: amount}, nil
	case shared.KindPayable:
		return &BalanceInstruction{BankAccountID: *bankAccountID, Delta: amount.Neg()}, nil
	default:
		return nil, fmt.Errorf("settlement: unknown transaction kind %q", kind)
	}
}
