package receipt

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		want      string
		wantFound bool
	}{
		// a numeral holds a single separator group; the rest of the token is left out
		{"dot thousands before comma cents", "VALOR 1.500,00", "1500.00", true},
		{"cents after second group are dropped", "VALOR 1.500,50", "1500", true},
		{"comma thousands before dot cents", "TOTAL 1,500.00", "1500.00", true},
		{"millions keep first group only", "VALOR: R$ 1.234.567,89", "1234", true},
		{"three dot groups", "VALOR 12.345.678", "12345", true},
		{"three comma groups", "TOTAL 1,234,567", "1234", true},
		{"single digit groups", "VALOR 1.2.3", "12", true},

		// only comma
		{"comma two digits is cents", "TOTAL: 20,00", "20.00", true},
		{"comma three digits is thousands", "VALOR 1,500", "1500", true},
		{"comma one digit is thousands", "VALOR 20,5", "205", true},

		// only dot
		{"dot two digits is cents", "R$ 267.80", "267.80", true},
		{"dot three digits is thousands", "VALOR 1.500", "1500", true},

		// integers
		{"plain integer", "VALOR 20", "20", true},
		{"currency then integer", "R$20", "20", true},

		// anchoring
		{"colon and second currency symbol", "VALOR: R$ 150,00", "150.00", true},
		{"lowercase keyword", "valor pago: r$ 35,90", "35.90", true},
		{"keyword and number on separate lines", "TOTAL\n\n42,10", "42.10", true},
		{"nbsp between symbol and value", "R$\u00a0150,00", "150.00", true},
		{"first anchored match wins", "TOTAL 10,00 VALOR 20,00", "10.00", true},
		{"unanchored cpf only", "123.456.789-09", "0", false},
		{"unanchored plain number", "Pagamento 150,00 efetuado", "0", false},
		{"date is not an amount", "DATA 12/03/2025", "0", false},
		{"empty text", "", "0", false},

		// trailing-token guard
		{"number followed by hyphen is rejected", "VALOR 12-3", "0", false},
		{"rejected candidate falls through to later anchor", "TOTAL 0001-02 VALOR 30,00", "30.00", true},
		{"shorter candidate ending at separator", "VALOR 1.500-", "1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ParseAmount(tt.text)
			assert.Equal(t, tt.wantFound, found)
			want := decimal.RequireFromString(tt.want)
			assert.Truef(t, want.Equal(got), "ParseAmount(%q) = %s, want %s", tt.text, got, want)
		})
	}
}

func TestFindAmount_PreservesPrecision(t *testing.T) {
	m, ok := FindAmount("Comprovante Pix\nVALOR: R$ 150,00\nCNPJ 33.206.513/0001-02")
	require.True(t, ok)
	assert.Equal(t, "150,00", m.Raw)
	assert.Equal(t, int32(-2), m.Value.Exponent())
	assert.Equal(t, "150.00", m.Value.StringFixed(2))
}

func TestNormalizeNumeral(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1.500,00", "1500.00"},
		{"1,500.00", "1500.00"},
		{"20,00", "20.00"},
		{"1,500", "1500"},
		{"267.80", "267.80"},
		{"1.500", "1500"},
		{"1.000.000", "1000000"},
		{"20", "20"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeNumeral(tt.raw))
		})
	}
}
