// Package policy masks high-risk PII before text leaves the expiring
// context window for the long-lived archive. Patterns are tuned to the
// relay's audience: Kazakhstan mobile numbers (+7 7XX and 8 7XX shapes)
// and the 12-digit IIN, plus the usual email and card forms.
package policy

import "regexp"

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: long digit runs must be claimed by the card rule before
// the IIN rule sees them, and the IIN rule before the generic phone
// fallback, or a 12-digit IIN gets mislabeled as a phone number.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\b\d{12}\b`), "[REDACTED_IIN]"},
	{regexp.MustCompile(`(?:\+7|8)[\s\-]?\(?7\d{2}\)?[\s\-]?\d{3}[\s\-]?\d{2}[\s\-]?\d{2}`), "[REDACTED_PHONE]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks contact details, card numbers, and Kazakhstan identity
// numbers in input. The second return reports whether anything was masked.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactionRules {
		out = rule.pattern.ReplaceAllString(out, rule.marker)
	}
	return out, out != input
}
