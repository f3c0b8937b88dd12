// Package receipt reads payment facts out of transcribed receipt text.
package receipt

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// anchoredAmountPattern finds a numeral preceded by VALOR, TOTAL or R$, with an
// optional colon and an optional second R$ in between. The numeral is digits
// with at most one "." or "," group. Whitespace includes the Unicode separators
// (NBSP) that receipt generators put between R$ and the value.
var anchoredAmountPattern = regexp.MustCompile(
	`(?:VALOR|TOTAL|R\$)[\s\v\p{Z}]*:?[\s\v\p{Z}]*(?:R\$)?[\s\v\p{Z}]*(\d+(?:[.,]\d+)?)`,
)

// AmountMatch is the numeral selected from the text and its normalized value.
type AmountMatch struct {
	Raw   string
	Value decimal.Decimal
}

// ParseAmount returns the payment amount asserted by the receipt text.
// found is false, and the amount zero, when no anchored numeral exists.
func ParseAmount(text string) (amount decimal.Decimal, found bool) {
	m, ok := FindAmount(text)
	if !ok {
		return decimal.Zero, false
	}
	return m.Value, true
}

// FindAmount locates the first anchored numeral in text. A numeral must not be
// immediately followed by a digit or a hyphen; when the longest candidate is,
// shorter candidates ending at a separator are tried before moving on.
func FindAmount(text string) (AmountMatch, bool) {
	upper := strings.ReplaceAll(strings.ToUpper(text), "\n", " ")

	for pos := 0; pos < len(upper); {
		loc := anchoredAmountPattern.FindStringSubmatchIndex(upper[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[2], pos+loc[3]

		for _, cut := range candidateEnds(upper[start:end]) {
			if followedByTokenChar(upper, start+cut) {
				continue
			}
			raw := upper[start : start+cut]
			value, err := decimal.NewFromString(normalizeNumeral(raw))
			if err != nil {
				continue
			}
			return AmountMatch{Raw: raw, Value: value}, true
		}

		pos += loc[0] + 1
	}

	return AmountMatch{}, false
}

// candidateEnds lists prefix lengths of numeral that end on a digit group,
// longest first: the whole numeral, then its integer part.
func candidateEnds(numeral string) []int {
	ends := []int{len(numeral)}
	for i := len(numeral) - 1; i > 0; i-- {
		if numeral[i] == '.' || numeral[i] == ',' {
			ends = append(ends, i)
		}
	}
	return ends
}

func followedByTokenChar(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return c == '-' || (c >= '0' && c <= '9')
}

// normalizeNumeral resolves the decimal/thousands ambiguity of a numeral and
// returns it in plain "1234.56" form.
//
// With both separators the later one is the decimal point. With a single kind
// of separator it is the decimal point only when exactly two digits follow its
// last occurrence; otherwise it groups thousands.
func normalizeNumeral(raw string) string {
	lastComma := strings.LastIndexByte(raw, ',')
	lastDot := strings.LastIndexByte(raw, '.')

	decimalAt := -1
	switch {
	case lastComma >= 0 && lastDot >= 0:
		decimalAt = max(lastComma, lastDot)
	case lastComma >= 0:
		if len(raw)-lastComma-1 == 2 {
			decimalAt = lastComma
		}
	case lastDot >= 0:
		if len(raw)-lastDot-1 == 2 {
			decimalAt = lastDot
		}
	default:
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case i == decimalAt:
			b.WriteByte('.')
		case c == '.' || c == ',':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
