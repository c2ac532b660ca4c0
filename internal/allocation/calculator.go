package allocation

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Validate checks an allocation set and reports every problem at once.
func Validate(entries []Entry) error {
	verr := &shared.ValidationError{}
	if len(entries) == 0 {
		verr.Addf("at least one cost center required")
		return verr
	}
	seen := make(map[string]int, len(entries))
	sum := decimal.Zero
	for i, e := range entries {
		id := strings.TrimSpace(e.CostCenterID)
		if id == "" {
			verr.Addf("entry %d: cost center is required", i+1)
		} else {
			seen[id]++
			if seen[id] == 2 {
				verr.Addf("cost center %s appears more than once", id)
			}
		}
		if !e.Percentage.IsPositive() || e.Percentage.GreaterThan(shared.Hundred) {
			verr.Addf("entry %d: percentage must be greater than 0 and at most 100", i+1)
		}
		sum = sum.Add(e.Percentage)
	}
	if !shared.WithinTolerance(sum, shared.Hundred) {
		verr.Addf("percentages must sum to 100 (got %s)", sum.StringFixed(2))
	}
	return verr.Err()
}

// ComputeAmounts validates entries and distributes totalAmount across them.
//
// Each amount is totalAmount*percentage/100 truncated to cents, so for
// percentage sums up to 100 the residual is never negative. The residual
// (from truncation, or from a percentage sum inside the tolerance but not
// exactly 100) is added to the line with the largest amount; ties go to the
// first such line in input order. The returned amounts always add up to
// totalAmount rounded to cents.
func ComputeAmounts(entries []Entry, totalAmount decimal.Decimal) ([]Line, error) {
	if err := Validate(entries); err != nil {
		return nil, err
	}
	if totalAmount.IsNegative() {
		return nil, shared.NewValidationError("total amount must not be negative")
	}
	total := shared.RoundMoney(totalAmount)

	lines := make([]Line, len(entries))
	sum := decimal.Zero
	for i, e := range entries {
		amount := total.Mul(e.Percentage).Div(shared.Hundred).Truncate(shared.MoneyPlaces)
		lines[i] = Line{
			CostCenterID: strings.TrimSpace(e.CostCenterID),
			Percentage:   e.Percentage,
			Amount:       amount,
		}
		sum = sum.Add(amount)
	}

	residual := total.Sub(sum)
	if !residual.IsZero() {
		idx := largest(lines)
		lines[idx].Amount = lines[idx].Amount.Add(residual)
	}

	if got := Sum(lines); !got.Equal(total) || hasNegative(lines) {
		return nil, &RoundingInvariantViolation{Total: total, Sum: got}
	}
	return lines, nil
}

func largest(lines []Line) int {
	idx := 0
	for i := 1; i < len(lines); i++ {
		if lines[i].Amount.GreaterThan(lines[idx].Amount) {
			idx = i
		}
	}
	return idx
}

func hasNegative(lines []Line) bool {
	for _, l := range lines {
		if l.Amount.IsNegative() {
			return true
		}
	}
	return false
}

// EqualSplit spreads 100% evenly across the given cost centers. Each share is
// rounded to two decimals and the rounding remainder lands on the last entry.
func EqualSplit(costCenterIDs []string) []Entry {
	n := len(costCenterIDs)
	if n == 0 {
		return []Entry{}
	}
	share := shared.Hundred.Div(decimal.NewFromInt(int64(n))).Round(shared.MoneyPlaces)
	entries := make([]Entry, n)
	sum := decimal.Zero
	for i, id := range costCenterIDs {
		entries[i] = Entry{CostCenterID: id, Percentage: share}
		sum = sum.Add(share)
	}
	remainder := shared.Hundred.Sub(sum)
	entries[n-1].Percentage = entries[n-1].Percentage.Add(remainder).Round(shared.MoneyPlaces)
	return entries
}
