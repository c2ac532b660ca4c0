package reports

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/allocation"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// PaymentShare is one allocation entry of a settled payment.
type PaymentShare struct {
	PaymentID    int64
	Kind         shared.TransactionKind
	Amount       decimal.Decimal
	CostCenterID string
	Percentage   decimal.Decimal
}

type centerKey struct {
	kind   shared.TransactionKind
	center string
}

// SpreadPayments splits every payment across its cost centers with the
// allocation residual rule and sums the shares per kind and cost center.
// Shares of one payment must be contiguous and in allocation order, so the
// per-center amounts of a payment always add up to the payment.
func SpreadPayments(shares []PaymentShare) ([]CostCenterTotal, error) {
	sums := map[centerKey]decimal.Decimal{}
	for start := 0; start < len(shares); {
		end := start + 1
		for end < len(shares) && shares[end].PaymentID == shares[start].PaymentID {
			end++
		}
		group := shares[start:end]
		entries := make([]allocation.Entry, len(group))
		for i, sh := range group {
			entries[i] = allocation.Entry{CostCenterID: sh.CostCenterID, Percentage: sh.Percentage}
		}
		lines, err := allocation.ComputeAmounts(entries, group[0].Amount)
		if err != nil {
			return nil, fmt.Errorf("reports: spread payment %d: %w", group[0].PaymentID, err)
		}
		for _, l := range lines {
			k := centerKey{kind: group[0].Kind, center: l.CostCenterID}
			sums[k] = sums[k].Add(l.Amount)
		}
		start = end
	}

	out := make([]CostCenterTotal, 0, len(sums))
	for k, amount := range sums {
		out = append(out, CostCenterTotal{Kind: k.kind, CostCenterID: k.center, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CostCenterID != out[j].CostCenterID {
			return out[i].CostCenterID < out[j].CostCenterID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}
