package services

import "strings"

// mojibakeReplacer repairs UTF-8 text that was decoded as Windows-1252 and
// re-encoded, e.g. "PokÃ©mon" or "Rocketâ€™s". Three-byte sequences are listed
// before two-byte ones.
var mojibakeReplacer = strings.NewReplacer(
	"\u00e2\u20ac\u2122", "'",
	"\u00e2\u20ac\u02dc", "'",
	"\u00e2\u20ac\u0153", "\"",
	"\u00e2\u20ac\u009d", "\"",
	"\u00e2\u20ac\u201c", "–",
	"\u00e2\u20ac\u201d", "—",
	"\u00e2\u20ac\u00a6", "…",
	"\u00e2\u2122\u20ac", "♀",
	"\u00e2\u2122\u201a", "♂",
	"\u00e2\u02dc\u2026", "★",
	"\u00ce\u00b4", "δ",
	"\u00c3\u00a9", "é",
	"\u00c3\u00a8", "è",
	"\u00c3\u00aa", "ê",
	"\u00c3\u00ab", "ë",
	"\u00c3\u00a1", "á",
	"\u00c3\u00a0", "à",
	"\u00c3\u00a2", "â",
	"\u00c3\u00a4", "ä",
	"\u00c3\u00ad", "í",
	"\u00c3\u00ac", "ì",
	"\u00c3\u00ae", "î",
	"\u00c3\u00af", "ï",
	"\u00c3\u00b3", "ó",
	"\u00c3\u00b2", "ò",
	"\u00c3\u00b4", "ô",
	"\u00c3\u00b6", "ö",
	"\u00c3\u00ba", "ú",
	"\u00c3\u00b9", "ù",
	"\u00c3\u00bb", "û",
	"\u00c3\u00bc", "ü",
	"\u00c3\u00b1", "ñ",
	"\u00c3\u00a7", "ç",
	"\u00c3\u2030", "É",
	"\u00c3\u02c6", "È",
	"\u00c3\u20ac", "À",
	"\u00c3\u2021", "Ç",
	"\u00c3\u2013", "Ö",
	"\u00c3\u0153", "Ü",
	"\u00c3\u2014", "×",
	"\u00c2\u00b7", "·",
	"\u00c2\u00ae", "®",
	"\u00c2\u00a9", "©",
)

// RepairText fixes double-encoded characters and trims surrounding whitespace.
func RepairText(s string) string {
	if s == "" {
		return s
	}
	if strings.ContainsAny(s, "\u00c3\u00c2\u00e2\u00ce") {
		s = mojibakeReplacer.Replace(s)
	}
	return strings.TrimSpace(s)
}
