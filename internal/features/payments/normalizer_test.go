package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayxpay.dev/wallet-bot/internal/common"
)

func TestNormalizeSMSSyriatel(t *testing.T) {
	text := "رصيدك 50000 تم تحويله من 0912345678 بنجاح رقم العملية: 600000000001"

	n, err := NormalizeSMS(text, "Syriatel")
	assert.NoError(t, err)
	assert.Equal(t, "600000000001", n.ExternalID)
	assert.Equal(t, int64(50000), n.Amount)
	assert.Equal(t, "0912345678", n.Sender)
	assert.Equal(t, SourceSMS, n.Source)
}

func TestNormalizeSMSSyriatelLongID(t *testing.T) {
	text := "رصيدك 250000 تم تحويله من 0987654321 بنجاح رقم العملية: 600000000001234"

	n, err := NormalizeSMS(text, "Syriatel")
	assert.NoError(t, err)
	assert.Equal(t, "600000000001234", n.ExternalID)
	assert.Len(t, n.ExternalID, 15)
}

func TestNormalizeSMSBemo(t *testing.T) {
	text := "تم استلام حوالة بقيمة 75000 ل.س في حسابك رقم المرجع: 123456789"

	n, err := NormalizeSMS(text, "BemoBank")
	assert.NoError(t, err)
	assert.Equal(t, "123456789", n.ExternalID)
	assert.Equal(t, int64(75000), n.Amount)
	assert.Equal(t, "BemoBank", n.Sender)
}

func TestNormalizeSMSRejects(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "пустой текст", text: ""},
		{name: "реклама", text: "عرض خاص! اشحن الآن واحصل على رصيد مضاعف"},
		{name: "русский текст", text: "Ваш баланс пополнен на 50000"},
		{
			name: "Syriatel с номером неверной длины",
			text: "رصيدك 50000 تم تحويله من 0912345678 بنجاح رقم العملية: 12345",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := NormalizeSMS(tc.text, "test")
			assert.Nil(t, n)
			assert.True(t, common.IsValidation(err), "ожидалась ошибка валидации, получено %v", err)
		})
	}
}

func TestValidateExternalID(t *testing.T) {
	testCases := []struct {
		name    string
		method  Method
		id      string
		wantErr bool
	}{
		{name: "Payeer 10 цифр", method: MethodPayeer, id: "1234567890"},
		{name: "Bemo 9 цифр", method: MethodBemo, id: "123456789"},
		{name: "Syriatel 12 цифр", method: MethodSyriatel, id: "600000000001"},
		{name: "Syriatel 15 цифр", method: MethodSyriatel, id: "600000000001234"},
		{name: "Syriatel 13 цифр", method: MethodSyriatel, id: "6000000000012", wantErr: true},
		{name: "Payeer короткий", method: MethodPayeer, id: "12345", wantErr: true},
		{name: "буквы", method: MethodBemo, id: "12345678a", wantErr: true},
		{name: "пустой", method: MethodPayeer, id: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExternalID(tc.method, tc.id)
			if tc.wantErr {
				assert.True(t, common.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		want    int64
		wantErr bool
	}{
		{name: "целое", text: "10000", want: 10000},
		{name: "с пробелами", text: " 500 ", want: 500},
		{name: "десятичное округляется", text: "150.5", want: 151},
		{name: "ноль", text: "0", wantErr: true},
		{name: "отрицательное", text: "-100", wantErr: true},
		{name: "не число", text: "сто", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.text)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestKnownIDLength(t *testing.T) {
	assert.True(t, KnownIDLength("1234567890"))      // Payeer
	assert.True(t, KnownIDLength("123456789"))       // Bemo
	assert.True(t, KnownIDLength("600000000001"))    // Syriatel 12
	assert.True(t, KnownIDLength("600000000001234")) // Syriatel 15
	assert.False(t, KnownIDLength("1234"))
	assert.False(t, KnownIDLength(""))
}
