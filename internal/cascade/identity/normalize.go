package identity

import (
	"strings"
	"unicode"

	"cascade_backend/platform/phone"

	"golang.org/x/text/cases"
)

// NormalizeEmail trims and case-folds an address. A Caser keeps state, so
// each call folds with its own.
func NormalizeEmail(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || !strings.Contains(v, "@") {
		return ""
	}
	return cases.Fold().String(v)
}

// NormalizePhone returns the E.164 form of v, or "" when v is not a valid number.
func NormalizePhone(v, region string) string {
	n := phone.NormalizeE164In(v, region)
	if !strings.HasPrefix(n, "+") {
		return ""
	}
	return n
}

// NormalizeDocument keeps letters and digits, upper-cased.
func NormalizeDocument(v string) string {
	var b strings.Builder
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
