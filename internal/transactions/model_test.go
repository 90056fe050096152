package transactions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBalanceImpactSigns(t *testing.T) {
	amount := decimal.NewFromInt(2500)
	tests := []struct {
		txType TransactionType
		want   decimal.Decimal
	}{
		{TypeDeposit, amount},
		{TypeTransfer, amount},
		{TypeWithdrawal, amount.Neg()},
		{TypeFee, amount.Neg()},
		{TransactionType("inconnu"), decimal.Zero},
	}
	for _, tc := range tests {
		txn := &Transaction{Type: tc.txType, Amount: amount}
		require.True(t, tc.want.Equal(txn.BalanceImpact()), "type %s", tc.txType)
	}
}
