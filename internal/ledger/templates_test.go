package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"caricash/internal/money"
)

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	require.NoError(t, err)
	return a
}

func sumByEntryType(lines []CommandLine) (debit, credit int64) {
	for _, l := range lines {
		if l.EntryType == Debit {
			debit += l.Amount.Cents()
		} else {
			credit += l.Amount.Cents()
		}
	}
	return
}

func TestDepositWithFeeBalances(t *testing.T) {
	lines, err := DepositWithFee("cust-1", money.BBD,
		mustAmount(t, "1000.00"), mustAmount(t, "20.00"), mustAmount(t, "5.00"))
	require.NoError(t, err)
	require.Len(t, lines, 4)
	debit, credit := sumByEntryType(lines)
	require.Equal(t, debit, credit)
	require.Equal(t, int64(100_000), debit)
}

func TestSettlementFeeBalances(t *testing.T) {
	lines, err := SettlementFee("merch-1", money.BBD, mustAmount(t, "500.00"), mustAmount(t, "15.00"))
	require.NoError(t, err)
	debit, credit := sumByEntryType(lines)
	require.Equal(t, debit, credit)
}

func TestCommissionSplitSumsExactly(t *testing.T) {
	lines, err := CommissionSplit("agent-1", money.BBD, mustAmount(t, "100.01"), 7000, 3000)
	require.NoError(t, err)
	debit, credit := sumByEntryType(lines)
	require.Equal(t, debit, credit)
	require.Equal(t, int64(10_001), debit)
}

func TestTaxWithholdingBalances(t *testing.T) {
	lines, err := TaxWithholding("merch-2", money.USD, mustAmount(t, "50.00"))
	require.NoError(t, err)
	debit, credit := sumByEntryType(lines)
	require.Equal(t, debit, credit)
}

func TestHoldbackReserveAndReleaseAreSymmetric(t *testing.T) {
	reserve, err := HoldbackReserve(OwnerAgent, "agent-3", money.BBD, mustAmount(t, "200.00"))
	require.NoError(t, err)
	release, err := HoldbackRelease(OwnerAgent, "agent-3", money.BBD, mustAmount(t, "200.00"))
	require.NoError(t, err)
	require.Equal(t, reserve[0].Account, release[1].Account)
	require.Equal(t, reserve[1].Account, release[0].Account)
}

func TestRoundingAdjustmentZeroReturnsNoEntries(t *testing.T) {
	lines, err := RoundingAdjustment(OwnerCustomer, "cust-4", money.BBD, money.Zero)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestRoundingAdjustmentNonZeroBalances(t *testing.T) {
	lines, err := RoundingAdjustment(OwnerCustomer, "cust-5", money.BBD, mustAmount(t, "-0.01"))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	debit, credit := sumByEntryType(lines)
	require.Equal(t, debit, credit)
}

func TestCommissionSplitRejectsBadBps(t *testing.T) {
	_, err := CommissionSplit("agent-9", money.BBD, mustAmount(t, "10.00"), 5000, 4000)
	require.Error(t, err)
}
