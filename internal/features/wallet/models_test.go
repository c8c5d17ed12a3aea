package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/common"
)

func TestPlanSpend(t *testing.T) {
	order := []Bucket{BucketGame, BucketBot}

	testCases := []struct {
		name    string
		wallet  Wallet
		amount  int64
		want    []Draw
		wantErr error
	}{
		{
			name:   "хватает бонусной корзины",
			wallet: Wallet{GameBalance: 50000, BotBalance: 100000},
			amount: 30000,
			want:   []Draw{{Bucket: BucketGame, Amount: 30000}},
		},
		{
			name:   "разбивка по двум корзинам",
			wallet: Wallet{GameBalance: 30000, BotBalance: 50000},
			amount: 50000,
			want: []Draw{
				{Bucket: BucketGame, Amount: 30000},
				{Bucket: BucketBot, Amount: 20000},
			},
		},
		{
			name:   "пустая бонусная корзина пропускается",
			wallet: Wallet{GameBalance: 0, BotBalance: 50000},
			amount: 40000,
			want:   []Draw{{Bucket: BucketBot, Amount: 40000}},
		},
		{
			name:   "ровно всё",
			wallet: Wallet{GameBalance: 10000, BotBalance: 40000},
			amount: 50000,
			want: []Draw{
				{Bucket: BucketGame, Amount: 10000},
				{Bucket: BucketBot, Amount: 40000},
			},
		},
		{
			name:    "не хватает суммарно",
			wallet:  Wallet{GameBalance: 10000, BotBalance: 10000},
			amount:  50000,
			wantErr: common.ErrInsufficientFunds,
		},
		{
			name:    "нулевая сумма",
			wallet:  Wallet{GameBalance: 10000, BotBalance: 10000},
			amount:  0,
			wantErr: common.ErrInvalidAmount,
		},
		{
			name:    "отрицательная сумма",
			wallet:  Wallet{GameBalance: 10000, BotBalance: 10000},
			amount:  -5,
			wantErr: common.ErrInvalidAmount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			draws, err := planSpend(&tc.wallet, tc.amount, order)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, draws)

			var total int64
			for _, d := range draws {
				total += d.Amount
			}
			assert.Equal(t, tc.amount, total, "разбивка покрывает сумму целиком")
		})
	}
}

func TestBalanceOf(t *testing.T) {
	w := &Wallet{BotBalance: 1, WebsiteBalance: 2, GameBalance: 3}
	assert.Equal(t, int64(1), w.BalanceOf(BucketBot))
	assert.Equal(t, int64(2), w.BalanceOf(BucketWebsite))
	assert.Equal(t, int64(3), w.BalanceOf(BucketGame))
}
