package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplySettlementPartialThenPaid(t *testing.T) {
	txn := Transaction{TotalAmount: amt("800.00"), AmountSettled: decimal.Zero, Status: StatusPendente}

	res, err := ApplySettlement(txn, amt("300.00"))
	require.NoError(t, err)
	require.Equal(t, StatusParcial, res.Status)
	require.Equal(t, "500.00", res.Remaining.StringFixed(2))

	txn.AmountSettled = res.AmountSettled
	txn.Status = res.Status

	res, err = ApplySettlement(txn, amt("500.00"))
	require.NoError(t, err)
	require.Equal(t, StatusPago, res.Status)
	require.Equal(t, "0.00", res.Remaining.StringFixed(2))
	require.Equal(t, "800.00", res.AmountSettled.StringFixed(2))
}

func TestApplySettlementRejectsTerminalStates(t *testing.T) {
	for _, status := range []Status{StatusPago, StatusCancelado} {
		for _, payment := range []string{"-5", "0", "0.01", "100", "100000"} {
			_, err := ApplySettlement(Transaction{TotalAmount: amt("100"), AmountSettled: amt("100"), Status: status}, amt(payment))
			var stateErr *InvalidStateError
			require.ErrorAs(t, err, &stateErr, "status %s payment %s", status, payment)
			require.Equal(t, status, stateErr.Status)
		}
	}
}

func TestApplySettlementAcceptsOverdueTransactions(t *testing.T) {
	res, err := ApplySettlement(Transaction{TotalAmount: amt("50"), Status: StatusVencido}, amt("50"))
	require.NoError(t, err)
	require.Equal(t, StatusPago, res.Status)
}

func TestApplySettlementRejectsNonPositivePayment(t *testing.T) {
	txn := Transaction{TotalAmount: amt("100"), Status: StatusPendente}
	for _, payment := range []string{"0", "-1", "0.001"} {
		_, err := ApplySettlement(txn, amt(payment))
		var verr *shared.ValidationError
		require.ErrorAs(t, err, &verr, payment)
	}
}

func TestApplySettlementOverpayment(t *testing.T) {
	txn := Transaction{TotalAmount: amt("100.00"), AmountSettled: amt("60.00"), Status: StatusParcial}

	_, err := ApplySettlement(txn, amt("40.02"))
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	require.Equal(t, "40.00", over.Remaining.StringFixed(2))

	res, err := ApplySettlement(txn, amt("40.01"))
	require.NoError(t, err)
	require.Equal(t, StatusPago, res.Status)
	require.Equal(t, "100.00", res.AmountSettled.StringFixed(2))
	require.Equal(t, "40.00", res.Applied.StringFixed(2))

	res, err = Machine{Policy: OverpaymentClamp}.Apply(txn, amt("55.00"))
	require.NoError(t, err)
	require.Equal(t, StatusPago, res.Status)
	require.Equal(t, "40.00", res.Applied.StringFixed(2))
	require.Equal(t, "100.00", res.AmountSettled.StringFixed(2))
}

func TestApplySettlementNothingLeftToSettle(t *testing.T) {
	zero := Transaction{TotalAmount: decimal.Zero, Status: StatusPendente}
	for _, m := range []Machine{{Policy: OverpaymentReject}, {Policy: OverpaymentClamp}} {
		_, err := m.Apply(zero, amt("0.01"))
		var over *OverpaymentError
		require.ErrorAs(t, err, &over, m.Policy)
		_, err = m.Apply(zero, amt("5"))
		require.ErrorAs(t, err, &over, m.Policy)
	}
}

func TestApplySettlementPaidWithinTolerance(t *testing.T) {
	res, err := ApplySettlement(Transaction{TotalAmount: amt("100.00"), Status: StatusPendente}, amt("99.99"))
	require.NoError(t, err)
	require.Equal(t, StatusPago, res.Status)
	require.Equal(t, "0.01", res.Remaining.StringFixed(2))
}

func TestRemainingBalanceClampsAtZero(t *testing.T) {
	require.True(t, RemainingBalance(Transaction{TotalAmount: amt("10"), AmountSettled: amt("12")}).IsZero())
	require.Equal(t, "7.50", RemainingBalance(Transaction{TotalAmount: amt("10"), AmountSettled: amt("2.5")}).StringFixed(2))
}

func TestCancel(t *testing.T) {
	status, err := Cancel(Transaction{Status: StatusParcial})
	require.NoError(t, err)
	require.Equal(t, StatusCancelado, status)

	_, err = Cancel(Transaction{Status: StatusPago})
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestDisplayStatus(t *testing.T) {
	today := time.Date(2025, 5, 10, 15, 0, 0, 0, time.UTC)
	due := time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC)

	require.Equal(t, StatusVencido, DisplayStatus(Transaction{Status: StatusPendente, DueDate: due}, today))
	require.Equal(t, StatusVencido, DisplayStatus(Transaction{Status: StatusParcial, DueDate: due}, today))
	require.Equal(t, StatusPago, DisplayStatus(Transaction{Status: StatusPago, DueDate: due}, today))
	require.Equal(t, StatusPendente, DisplayStatus(Transaction{Status: StatusPendente, DueDate: today}, today))
	require.Equal(t, StatusParcial, DisplayStatus(Transaction{
		Status: StatusVencido, DueDate: today, TotalAmount: amt("10"), AmountSettled: amt("4"),
	}, today))
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusPendente, DeriveStatus(amt("10"), decimal.Zero))
	require.Equal(t, StatusParcial, DeriveStatus(amt("10"), amt("5")))
	require.Equal(t, StatusPago, DeriveStatus(amt("10"), amt("9.99")))
}

func TestBalanceAdjustment(t *testing.T) {
	account := int64(7)
	ins, err := BalanceAdjustment(shared.KindReceivable, &account, amt("25"))
	require.NoError(t, err)
	require.Equal(t, "25.00", ins.Delta.StringFixed(2))

	ins, err = BalanceAdjustment(shared.KindPayable, &account, amt("25"))
	require.NoError(t, err)
	require.Equal(t, "-25.00", ins.Delta.StringFixed(2))

	ins, err = BalanceAdjustment(shared.KindPayable, nil, amt("25"))
	require.NoError(t, err)
	require.Nil(t, ins)
}

func TestParseOverpaymentPolicy(t *testing.T) {
	p, err := ParseOverpaymentPolicy("")
	require.NoError(t, err)
	require.Equal(t, OverpaymentReject, p)
	_, err = ParseOverpaymentPolicy("allow")
	require.Error(t, err)
}

func TestMethodValid(t *testing.T) {
	require.Len(t, Methods, 8)
	for _, m := range Methods {
		require.True(t, m.Valid(), m)
	}
	require.False(t, Method("crypto").Valid())
	require.False(t, Method("").Valid())
}
