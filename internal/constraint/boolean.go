package constraint

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalize folds case and composes accents so "SÍ", "sí" and "sí"
// compare equal.
func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// booleanTokens maps normalized affirmative and negative words of the
// supported locales. Keys must already be normalized.
var booleanTokens = map[string]bool{
	"true": true,
	"1":    true,
	"yes":  true,
	"y":    true,
	"ano":  true,
	"áno":  true,
	"sí":   true,
	"si":   true,
	"ja":   true,
	"oui":  true,
	"tak":  true,
	"sim":  true,
	"да":   true,
	"是":    true,
	"はい":   true,
	"✓":    true,
	"✔":    true,

	"false": false,
	"0":     false,
	"no":    false,
	"n":     false,
	"ne":    false,
	"nie":   false,
	"nein":  false,
	"non":   false,
	"não":   false,
	"нет":   false,
	"否":     false,
	"いいえ":   false,
}

// ParseBoolean looks a free-text token up in the locale table.
func ParseBoolean(text string) (value bool, ok bool) {
	value, ok = booleanTokens[normalize(text)]
	return value, ok
}
