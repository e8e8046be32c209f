// Package masking applies PII redaction to log output before it leaves the
// process. Redaction is mandatory wherever a log call might carry
// applicant-supplied strings (LLM prompts, reasoning text, rule flags).
package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement token.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns is the fixed set of PII patterns redacted from every log
// line. Order matters: the 16-digit card pattern runs before SIN/phone so a
// card number isn't partially consumed by the shorter digit-group patterns
// first, fragmenting it into an unredacted remainder.
var builtinPatterns = []*CompiledPattern{
	{
		Name:        "card",
		Regex:       regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`),
		Replacement: "[CARD-REDACTED]",
	},
	{
		Name:        "sin",
		Regex:       regexp.MustCompile(`\b\d{3}[-\s]?\d{3}[-\s]?\d{3}\b`),
		Replacement: "[SIN-REDACTED]",
	},
	{
		Name:        "email",
		Regex:       regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		Replacement: "[EMAIL-REDACTED]",
	},
	{
		Name:        "postal_code",
		Regex:       regexp.MustCompile(`(?i)\b[A-Z]\d[A-Z][-\s]?\d[A-Z]\d\b`),
		Replacement: "[POSTAL-REDACTED]",
	},
	{
		Name:        "phone",
		Regex:       regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		Replacement: "[PHONE-REDACTED]",
	},
}
