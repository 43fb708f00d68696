package utils

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Fold returns the Unicode case folded form of s.
// A Caser keeps state, so every call gets its own.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// HasPrefixFold checks if s has prefix case-insensitively.
func HasPrefixFold(s, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(Fold(s), Fold(prefix))
}

// TrimLeftSpace strips leading Unicode whitespace only.
func TrimLeftSpace(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// GroupDigits formats n with sep between groups of three digits,
// so GroupDigits(1234567, ",") is "1,234,567".
func GroupDigits(n int, sep string) string {
	str := strconv.Itoa(n)
	neg := false
	if n < 0 {
		neg = true
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(str) % 3
	if lead > 0 {
		b.WriteString(str[:lead])
	}
	for i := lead; i < len(str); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteString(sep)
		}
		b.WriteString(str[i : i+3])
	}
	return b.String()
}
