package recurrence

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Installment is one scheduled occurrence of a recurring series.
type Installment struct {
	Number  int             `json:"installment_number"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// Preview is an editable installment schedule shown before a series is saved.
type Preview struct {
	installments []Installment
}

// BuildPreview pairs the generated due dates with baseAmount. Every
// installment receives the full base amount.
func BuildPreview(start time.Time, t Type, count int, baseAmount decimal.Decimal) (*Preview, error) {
	if baseAmount.IsNegative() {
		return nil, shared.NewValidationError("installment amount must not be negative")
	}
	dates, err := GenerateInstallmentDates(start, t, count)
	if err != nil {
		return nil, err
	}
	amount := shared.RoundMoney(baseAmount)
	items := make([]Installment, len(dates))
	for i, d := range dates {
		items[i] = Installment{Number: i + 1, DueDate: d, Amount: amount}
	}
	return &Preview{installments: items}, nil
}

// FromInstallments rebuilds a preview from a schedule edited by the caller.
// Numbers must run 1..n in order.
func FromInstallments(items []Installment) (*Preview, error) {
	verr := &shared.ValidationError{}
	if len(items) == 0 {
		verr.Addf("at least one installment required")
	}
	if len(items) > MaxInstallments {
		verr.Addf("installment count must be between 1 and %d", MaxInstallments)
	}
	out := make([]Installment, len(items))
	for i, it := range items {
		if it.Number != i+1 {
			verr.Addf("installment %d: expected number %d", i+1, i+1)
		}
		if it.DueDate.IsZero() {
			verr.Addf("installment %d: due date is required", i+1)
		}
		if it.Amount.IsNegative() {
			verr.Addf("installment %d: amount must not be negative", i+1)
		}
		out[i] = Installment{Number: i + 1, DueDate: it.DueDate, Amount: shared.RoundMoney(it.Amount)}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return &Preview{installments: out}, nil
}

// Installments returns a copy of the schedule.
func (p *Preview) Installments() []Installment {
	if p == nil {
		return nil
	}
	return append([]Installment(nil), p.installments...)
}

// Len returns the number of installments.
func (p *Preview) Len() int {
	if p == nil {
		return 0
	}
	return len(p.installments)
}

// Edit overrides the due date and/or amount of one installment, leaving the
// rest of the schedule untouched. A nil argument keeps the current value.
func (p *Preview) Edit(number int, dueDate *time.Time, amount *decimal.Decimal) error {
	if p == nil || number < 1 || number > len(p.installments) {
		return shared.NewValidationError("installment number out of range")
	}
	verr := &shared.ValidationError{}
	if dueDate != nil && dueDate.IsZero() {
		verr.Addf("installment %d: due date is required", number)
	}
	if amount != nil && amount.IsNegative() {
		verr.Addf("installment %d: amount must not be negative", number)
	}
	if err := verr.Err(); err != nil {
		return err
	}
	it := &p.installments[number-1]
	if dueDate != nil {
		it.DueDate = *dueDate
	}
	if amount != nil {
		it.Amount = shared.RoundMoney(*amount)
	}
	return nil
}

// Total sums the installment amounts. It is informational only.
func (p *Preview) Total() decimal.Decimal {
	total := decimal.Zero
	if p == nil {
		return total
	}
	for _, it := range p.installments {
		total = total.Add(it.Amount)
	}
	return total
}
