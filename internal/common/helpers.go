// Package common содержит общие утилиты: форматирование сумм в лирах,
// работа с дамасским временем, отображение дат.
package common

import (
	"fmt"
	"math"
	"time"
)

// FormatAmount форматирует сумму в читабельную строку с разделителями тысяч.
// Пример: FormatAmount(1500000) → "1 500 000 SYP"
func FormatAmount(amount int64) string {
	return groupDigits(amount) + " SYP"
}

// groupDigits вставляет пробелы между группами по три цифры.
func groupDigits(n int64) string {
	sign := ""
	abs := n
	if n < 0 {
		sign = "-"
		abs = -n
	}
	s := fmt.Sprintf("%d", abs)
	if len(s) <= 3 {
		return sign + s
	}
	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, s[i:i+3]...)
	}
	return sign + string(out)
}

// Percent считает долю от суммы с округлением к ближайшему целому.
// Используется калькулятором комиссий.
func Percent(amount int64, fraction float64) int64 {
	return int64(math.Round(float64(amount) * fraction))
}

// DamascusLocation возвращает часовой пояс Дамаска (Asia/Damascus).
// Если tzdata недоступна — фиксированный UTC+3.
func DamascusLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Damascus")
	if err != nil {
		loc = time.FixedZone("DMS", 3*60*60)
	}
	return loc
}

// DamascusTime возвращает текущее время в поясе Дамаска.
// По нему считаются суточные финансовые сводки.
func DamascusTime() time.Time {
	return time.Now().In(DamascusLocation())
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" по Дамаску.
// Используется при отображении истории транзакций.
func FormatDateTime(t time.Time) string {
	return t.In(DamascusLocation()).Format("02.01.2006 15:04")
}
