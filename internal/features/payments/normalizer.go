// Package payments — normalizer.go превращает сырые подтверждения
// (пересланное SMS, пользовательский ввод) в каноническую форму
// (номер операции, сумма, источник). Нераспознанный формат фатален
// только для самого сообщения: оно логируется и отбрасывается,
// состояние не мутируется.
package payments

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"wayxpay.dev/wallet-bot/internal/common"
)

// Шаблоны SMS платёжных сетей. У каждого провайдера своя длина номера
// операции: Syriatel Cash — 12 или 15 цифр, Bemo — 9, Payeer — 10.
var (
	// Syriatel Cash: «رصيدك 50000 تم تحويله من 0912345678 ... رقم العملية: 600000000001»
	syriatelSMSPattern = regexp.MustCompile(`رصيدك (\d+) تم تحويله من (\d{10}) .* رقم العملية: (\d+)`)
	// Bemo: «تم استلام حوالة بقيمة 75000 ل.س ... رقم المرجع: 123456789»
	bemoSMSPattern = regexp.MustCompile(`تم استلام حوالة بقيمة (\d+) ل\.س .* رقم المرجع: (\d{9})`)
)

// idLengths — допустимые длины номера операции по платёжному каналу.
var idLengths = map[Method][]int{
	MethodPayeer:   {10},
	MethodBemo:     {9},
	MethodSyriatel: {12, 15},
}

// NormalizeSMS разбирает текст пересланного SMS по известным шаблонам.
// Возвращает ValidationError("unmatched pattern"), если текст не похож
// ни на один шаблон провайдера.
func NormalizeSMS(text, sender string) (*Notification, error) {
	text = strings.TrimSpace(text)

	if m := syriatelSMSPattern.FindStringSubmatch(text); m != nil {
		amount, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || amount <= 0 {
			return nil, common.NewValidationError("некорректная сумма в SMS: %q", m[1])
		}
		id := m[3]
		if len(id) != 12 && len(id) != 15 {
			return nil, common.NewValidationError("номер операции Syriatel должен содержать 12 или 15 цифр, получено %d", len(id))
		}
		return &Notification{
			ExternalID: id,
			Amount:     amount,
			Sender:     m[2],
			Source:     SourceSMS,
			ReceivedAt: time.Now().UTC(),
		}, nil
	}

	if m := bemoSMSPattern.FindStringSubmatch(text); m != nil {
		amount, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || amount <= 0 {
			return nil, common.NewValidationError("некорректная сумма в SMS: %q", m[1])
		}
		return &Notification{
			ExternalID: m[2],
			Amount:     amount,
			Sender:     sender,
			Source:     SourceSMS,
			ReceivedAt: time.Now().UTC(),
		}, nil
	}

	return nil, common.NewValidationError("unmatched pattern")
}

// ValidateExternalID проверяет номер операции, введённый пользователем:
// только цифры, длина по правилам платёжного канала.
func ValidateExternalID(method Method, id string) error {
	if !isDigits(id) {
		return common.NewValidationError("номер операции должен состоять только из цифр")
	}
	lengths, ok := idLengths[method]
	if !ok {
		return common.NewValidationError("неизвестный платёжный канал: %s", method)
	}
	for _, l := range lengths {
		if len(id) == l {
			return nil
		}
	}
	return common.NewValidationError("номер операции %s должен содержать %s цифр", method, lengthsText(lengths))
}

// ParseAmount разбирает введённую пользователем сумму. Допускаются
// десятичные (например "150.5"), результат округляется до целых лир.
func ParseAmount(text string) (int64, error) {
	text = strings.TrimSpace(text)
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, common.NewValidationError("сумма должна быть числом, например 10000 или 150.5")
	}
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, common.NewValidationError("сумма должна быть больше нуля")
	}
	return int64(math.Round(f)), nil
}

// KnownIDLength сообщает, совпадает ли длина номера хоть с одним
// провайдером. Несовпадение — повод для предупреждения в логах:
// провайдерские форматы не должны пересекаться.
func KnownIDLength(id string) bool {
	for _, lengths := range idLengths {
		for _, l := range lengths {
			if len(id) == l {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func lengthsText(lengths []int) string {
	parts := make([]string, 0, len(lengths))
	for _, l := range lengths {
		parts = append(parts, strconv.Itoa(l))
	}
	return strings.Join(parts, " или ")
}
