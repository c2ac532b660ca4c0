// Package allocation splits transaction amounts across cost centers by percentage.
package allocation

import "github.com/shopspring/decimal"

// Entry assigns a share of a transaction to one cost center.
type Entry struct {
	CostCenterID string          `json:"cost_center_id"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// Line is an Entry with its computed monetary amount.
type Line struct {
	CostCenterID string          `json:"cost_center_id"`
	Percentage   decimal.Decimal `json:"percentage"`
	Amount       decimal.Decimal `json:"amount"`
}

// Entries strips the amounts from lines.
func Entries(lines []Line) []Entry {
	out := make([]Entry, 0, len(lines))
	for _, l := range lines {
		out = append(out, Entry{CostCenterID: l.CostCenterID, Percentage: l.Percentage})
	}
	return out
}

// Sum totals the amounts of lines.
func Sum(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}
