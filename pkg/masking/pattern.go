package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// PatternSpec is the uncompiled form used by the built-in table.
type PatternSpec struct {
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns are the identifiers scrubbed from every outbound prompt.
// Clinical content (diagnoses, labs, treatment history) is never masked; the
// analysis depends on it.
var builtinPatterns = map[string]PatternSpec{
	"ssn": {
		Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		Replacement: "***-**-****",
		Description: "US Social Security Numbers",
	},
	"mrn": {
		Pattern:     `(?i)\bMRN[:#\s]*\d{5,10}\b`,
		Replacement: "MRN:[REDACTED]",
		Description: "Medical record numbers with an MRN label",
	},
	"phone": {
		Pattern:     `\b\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`,
		Replacement: "[PHONE]",
		Description: "US phone numbers",
	},
	"email": {
		Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		Replacement: "[EMAIL]",
		Description: "Email addresses",
	},
}
