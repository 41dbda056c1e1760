// Package anonymize strips personally identifiable information from user
// messages before they reach a reply provider.
package anonymize

import (
	"log/slog"
	"regexp"
)

// Placeholders substituted for detected PII.
const (
	Email   = "[EMAIL]"
	Phone   = "[PHONE]"
	Name    = "[NAME]"
	Address = "[ADDRESS]"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// Mexican numbers: optional +52, 2-3 digit area code, 8 digit subscriber
	// number; or any bare 10 digit run.
	phonePattern = regexp.MustCompile(`(?:\+52\s?)?(?:\(?\d{2,3}\)?[-\s]?)(?:\d{4}[-\s]?\d{4})|\b\d{10}\b`)

	// The introducing phrase is case-insensitive; the name itself must be
	// capitalized so that "i'm tired" is left alone.
	namePattern = regexp.MustCompile(`\b((?i:my name is|i'?m|me llamo|soy)\s+)[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`)

	addressPattern = regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[a-z]+\s?){1,4}` +
		`(?:Street|St|Avenue|Ave|Boulevard|Blvd|Road|Rd|Drive|Dr|Lane|Ln|Court|Ct|Calle|Avenida|Av)\b`)
)

// Anonymizer is stateless and safe for concurrent use.
type Anonymizer struct {
	logger *slog.Logger
}

// New returns an Anonymizer logging to logger, or slog.Default when nil.
func New(logger *slog.Logger) *Anonymizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Anonymizer{logger: logger}
}

// Anonymize replaces emails, phone numbers, introduced names and street
// addresses, in that order. Only the kinds found are logged, never the text.
func (a *Anonymizer) Anonymize(text string) string {
	var found []string

	replace := func(re *regexp.Regexp, repl, kind string) {
		if re.MatchString(text) {
			text = re.ReplaceAllString(text, repl)
			found = append(found, kind)
		}
	}
	replace(emailPattern, Email, "email")
	replace(phonePattern, Phone, "phone")
	replace(namePattern, "${1}"+Name, "name")
	replace(addressPattern, Address, "address")

	if len(found) > 0 {
		a.logger.Info("pii detected and anonymized", "kinds", found)
	}
	return text
}
