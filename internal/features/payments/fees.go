// Package payments — fees.go: чистый калькулятор комиссий за вывод.
// Ступени и проценты — конфигурационная таблица в виде именованных
// констант, а не зашитая бизнес-логика.
package payments

import (
	"fmt"

	"wayxpay.dev/wallet-bot/internal/common"
)

// Ступени комиссии за вывод. Пороги — включительные нижние границы:
// сумма >= порога попадает в ступень порога.
const (
	// FeeTierHighThreshold — от этой суммы действует верхняя ставка
	FeeTierHighThreshold int64 = 15_000_000
	// FeeTierMidThreshold — от этой суммы действует средняя ставка
	FeeTierMidThreshold int64 = 1_000_000

	// FeeRateHigh — ставка для сумм >= FeeTierHighThreshold
	FeeRateHigh = 0.15
	// FeeRateMid — ставка для сумм >= FeeTierMidThreshold
	FeeRateMid = 0.10
	// FeeRateLow — ставка для остальных сумм
	FeeRateLow = 0.05
)

// ComputeWithdrawalFee считает комиссию и сумму к выплате.
// net = amount - fee. Отрицательный net при неотрицательных ставках
// невозможен, но проверяется защитно.
func ComputeWithdrawalFee(amount int64) (fee, net int64, err error) {
	if amount <= 0 {
		return 0, 0, common.ErrInvalidAmount
	}

	rate := FeeRateLow
	switch {
	case amount >= FeeTierHighThreshold:
		rate = FeeRateHigh
	case amount >= FeeTierMidThreshold:
		rate = FeeRateMid
	}

	fee = common.Percent(amount, rate)
	net = amount - fee
	if net < 0 {
		return 0, 0, fmt.Errorf("итоговая сумма отрицательна (amount=%d, fee=%d)", amount, fee)
	}
	return fee, net, nil
}
