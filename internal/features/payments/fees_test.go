package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/common"
)

func TestComputeWithdrawalFee(t *testing.T) {
	testCases := []struct {
		name    string
		amount  int64
		wantFee int64
		wantNet int64
	}{
		{
			name:    "нижний разряд",
			amount:  500_000,
			wantFee: 25_000,
			wantNet: 475_000,
		},
		{
			name:    "ровно на границе среднего разряда",
			amount:  1_000_000,
			wantFee: 100_000,
			wantNet: 900_000,
		},
		{
			name:    "чуть ниже средней границы",
			amount:  999_999,
			wantFee: 50_000,
			wantNet: 949_999,
		},
		{
			name:    "средний разряд",
			amount:  5_000_000,
			wantFee: 500_000,
			wantNet: 4_500_000,
		},
		{
			name:    "ровно на границе верхнего разряда",
			amount:  15_000_000,
			wantFee: 2_250_000,
			wantNet: 12_750_000,
		},
		{
			name:    "чуть ниже верхней границы",
			amount:  14_999_999,
			wantFee: 1_500_000,
			wantNet: 13_499_999,
		},
		{
			name:    "верхний разряд",
			amount:  20_000_000,
			wantFee: 3_000_000,
			wantNet: 17_000_000,
		},
		{
			name:    "минимальная сумма",
			amount:  1,
			wantFee: 0,
			wantNet: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fee, net, err := ComputeWithdrawalFee(tc.amount)
			assert.NoError(t, err)
			assert.Equal(t, tc.wantFee, fee)
			assert.Equal(t, tc.wantNet, net)
			assert.Equal(t, tc.amount, fee+net, "комиссия и выплата должны давать исходную сумму")
		})
	}
}

func TestComputeWithdrawalFeeRejectsNonPositive(t *testing.T) {
	for _, amount := range []int64{0, -1, -1_000_000} {
		_, _, err := ComputeWithdrawalFee(amount)
		assert.ErrorIs(t, err, common.ErrInvalidAmount, "amount=%d", amount)
	}
}
