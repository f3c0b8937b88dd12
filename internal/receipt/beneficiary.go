package receipt

import (
	"fmt"
	"strings"
)

// DefaultBeneficiaryID is the CNPJ 33.206.513/0001-02 in digit form.
const DefaultBeneficiaryID = "33206513000102"

// ocrConfusions maps glyphs OCR engines commonly read in place of digits.
var ocrConfusions = strings.NewReplacer("O", "0", "I", "1", "L", "1")

// BeneficiaryMatcher reports whether a receipt names the expected beneficiary.
type BeneficiaryMatcher struct {
	id string
}

// NewBeneficiaryMatcher builds a matcher for the given registry number.
// Punctuation is ignored, so "33.206.513/0001-02" and "33206513000102" are equivalent.
func NewBeneficiaryMatcher(id string) (*BeneficiaryMatcher, error) {
	digits := digitsOnly(id)
	if digits == "" {
		return nil, fmt.Errorf("NewBeneficiaryMatcher: identifier %q has no digits", id)
	}
	return &BeneficiaryMatcher{id: digits}, nil
}

// ID returns the canonical digit sequence the matcher looks for.
func (m *BeneficiaryMatcher) ID() string {
	return m.id
}

// Matches reports whether the identifier appears, contiguously, in the digit
// stream of text after OCR confusions are corrected.
func (m *BeneficiaryMatcher) Matches(text string) bool {
	return strings.Contains(NormalizeDigits(text), m.id)
}

// NormalizeDigits uppercases text, corrects O->0, I->1 and L->1, and drops
// every character that is not a digit.
func NormalizeDigits(text string) string {
	return digitsOnly(ocrConfusions.Replace(strings.ToUpper(text)))
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
