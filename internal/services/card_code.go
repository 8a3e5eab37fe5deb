package services

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unknownSpeciesCode is written into a card code when the caller has no species id.
const unknownSpeciesCode = 0

// supertypeCorrections repairs tokens that diacritic stripping alone leaves short
// of the ASCII spelling, e.g. a decomposed or mis-encoded "é".
var supertypeCorrections = map[string]string{
	"pokmon":  "pokemon",
	"pokamon": "pokemon",
}

// NormalizeToken lowercases s, strips diacritics and drops every character that
// is not an ASCII letter or digit.
func NormalizeToken(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range strings.ToLower(stripped) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeSupertype(supertype string) string {
	token := NormalizeToken(supertype)
	if fixed, ok := supertypeCorrections[token]; ok {
		return fixed
	}
	return token
}

// normalizeCardNumber keeps the printed number before any "/total" suffix.
func normalizeCardNumber(number string) string {
	if i := strings.Index(number, "/"); i >= 0 {
		number = number[:i]
	}
	return NormalizeToken(number)
}

// GenerateCardCode builds the canonical identifier
// supertype_speciesId_setCode_cardNumber. It never fails; a speciesID of 0
// means the species is unknown.
func GenerateCardCode(supertype string, speciesID int, setCode, cardNumber string) string {
	if speciesID < 0 {
		speciesID = unknownSpeciesCode
	}
	return strings.Join([]string{
		normalizeSupertype(supertype),
		strconv.Itoa(speciesID),
		NormalizeToken(setCode),
		normalizeCardNumber(cardNumber),
	}, "_")
}

// speciesOrUnknown converts an optional species number for GenerateCardCode.
func speciesOrUnknown(n *int) int {
	if n == nil {
		return unknownSpeciesCode
	}
	return *n
}

// ReplaceSetCode swaps the set segment of an existing card code. Codes that do
// not have four segments are returned unchanged.
func ReplaceSetCode(cardCode, setCode string) string {
	parts := strings.Split(cardCode, "_")
	if len(parts) != 4 {
		return cardCode
	}
	parts[2] = NormalizeToken(setCode)
	return strings.Join(parts, "_")
}
