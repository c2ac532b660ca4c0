package reports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

func TestSpreadPaymentsKeepsPaymentTotals(t *testing.T) {
	var shares []PaymentShare
	for _, id := range []int64{1, 2} {
		shares = append(shares,
			PaymentShare{PaymentID: id, Kind: shared.KindReceivable, Amount: amount("10.00"), CostCenterID: "a", Percentage: amount("33.33")},
			PaymentShare{PaymentID: id, Kind: shared.KindReceivable, Amount: amount("10.00"), CostCenterID: "b", Percentage: amount("33.33")},
			PaymentShare{PaymentID: id, Kind: shared.KindReceivable, Amount: amount("10.00"), CostCenterID: "c", Percentage: amount("33.34")},
		)
	}
	shares = append(shares, PaymentShare{PaymentID: 3, Kind: shared.KindPayable, Amount: amount("5.00"), CostCenterID: "a", Percentage: amount("100")})

	totals, err := SpreadPayments(shares)
	require.NoError(t, err)
	require.Len(t, totals, 4)

	got := map[string]string{}
	for _, tot := range totals {
		got[string(tot.Kind)+":"+tot.CostCenterID] = tot.Amount.StringFixed(2)
	}
	require.Equal(t, map[string]string{
		"payable:a":    "5.00",
		"receivable:a": "6.68",
		"receivable:b": "6.66",
		"receivable:c": "6.66",
	}, got)
	require.Equal(t, "a", totals[0].CostCenterID)
	require.Equal(t, "c", totals[3].CostCenterID)
}

func TestSpreadPaymentsRejectsBrokenAllocationSet(t *testing.T) {
	_, err := SpreadPayments([]PaymentShare{
		{PaymentID: 9, Kind: shared.KindPayable, Amount: amount("1.00"), CostCenterID: "a", Percentage: amount("40")},
	})
	require.Error(t, err)

	totals, err := SpreadPayments(nil)
	require.NoError(t, err)
	require.Empty(t, totals)
}
