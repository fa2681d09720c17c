// Package authz implements the authorization gateway against the
// Permit.io REST and PDP APIs.
package authz

import (
	"strings"
	"unicode"
)

// NormalizeFunc maps a raw username onto the subject key used by the
// authorization service. Callers pass usernames as stored in the
// catalog; the gateway normalizes at its boundary so no other layer
// needs to know about key formats.
type NormalizeFunc func(string) string

// NewNormalizer returns the named normalization strategy. "slugify" is
// the default; "lowercase" folds case only and "identity" passes the
// name through untouched. Unknown names fall back to slugify.
func NewNormalizer(strategy string) NormalizeFunc {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "lowercase":
		return strings.ToLower
	case "identity":
		return func(s string) string { return s }
	default:
		return Slugify
	}
}

// Slugify converts a display name into a stable key: letters and
// digits are lowercased, whitespace runs collapse to a single hyphen,
// and everything else is dropped. Accented letters lose their marks
// where a plain ASCII letter exists ("José" becomes "jose").
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingHyphen := false
	for _, r := range strings.TrimSpace(s) {
		r = foldRune(r)
		switch {
		case unicode.IsSpace(r):
			pendingHyphen = b.Len() > 0
		case r == '-' || r == '_' || isASCIIAlphanumeric(r):
			if pendingHyphen {
				b.WriteByte('-')
				pendingHyphen = false
			}
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func isASCIIAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// foldRune strips a combining accent by mapping common Latin-1 and
// Latin Extended letters onto their base ASCII letter. Runes outside
// the table pass through and are handled by the caller's filter.
func foldRune(r rune) rune {
	if r < 0x80 {
		return r
	}
	if mapped, ok := latinFold[r]; ok {
		return mapped
	}
	return r
}

var latinFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a', 'ā': 'a',
	'Á': 'A', 'À': 'A', 'Â': 'A', 'Ä': 'A', 'Ã': 'A', 'Å': 'A', 'Ā': 'A',
	'ç': 'c', 'Ç': 'C', 'ć': 'c', 'č': 'c',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e', 'ė': 'e',
	'É': 'E', 'È': 'E', 'Ê': 'E', 'Ë': 'E', 'Ē': 'E',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
	'Í': 'I', 'Ì': 'I', 'Î': 'I', 'Ï': 'I',
	'ñ': 'n', 'Ñ': 'N', 'ń': 'n',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o', 'ō': 'o',
	'Ó': 'O', 'Ò': 'O', 'Ô': 'O', 'Ö': 'O', 'Õ': 'O', 'Ø': 'O',
	'š': 's', 'Š': 'S', 'ß': 's',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
	'Ú': 'U', 'Ù': 'U', 'Û': 'U', 'Ü': 'U',
	'ý': 'y', 'ÿ': 'y', 'Ý': 'Y',
	'ž': 'z', 'Ž': 'Z', 'ź': 'z',
}
