// Package privacy redacts patient identifiers from query text before it
// is persisted or logged.
package privacy

import (
	"regexp"
	"strings"
)

var (
	// ssnRegex matches SSN-shaped tokens (123-45-6789).
	ssnRegex = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// phoneRegex matches common US phone shapes.
	phoneRegex = regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)

	// mrnRegex matches explicitly tagged medical record numbers.
	mrnRegex = regexp.MustCompile(`(?i)\bmrn[:# ]\s*[A-Z0-9-]{4,}\b`)
)

// RedactIdentifiers masks identifier-shaped tokens in text.
// Clinical content (doses, protocol numbers, vitals) is left untouched;
// only SSN-, phone-, and tagged-MRN-shaped tokens are replaced.
func RedactIdentifiers(text string) string {
	text = ssnRegex.ReplaceAllString(text, "[REDACTED-SSN]")
	text = phoneRegex.ReplaceAllString(text, "[REDACTED-PHONE]")
	text = mrnRegex.ReplaceAllString(text, "[REDACTED-MRN]")
	return text
}

// Clean redacts identifiers and trims whitespace. This is the function
// to use before storing or logging any user-submitted query text.
func Clean(text string) string {
	return strings.TrimSpace(RedactIdentifiers(text))
}
