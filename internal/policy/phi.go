// Package policy masks protected health information in transcripts before
// they leave the process.
package policy

import (
	"regexp"
	"strings"
)

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: identifiers with fixed shapes run before the loose card
// and phone patterns so those do not claim NPIs, member IDs or claims.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b\d{10}\b`), "[REDACTED_NPI]"},
	{regexp.MustCompile(`(?i)\b(?:[A-Z]{3}-\d{7}|M\d{5,}|MBR\d+)\b`), "[REDACTED_MEMBER_ID]"},
	{regexp.MustCompile(`(?i)\bCLM-?\d{5,}(?:-\d{4})?\b`), "[REDACTED_CLAIM_ID]"},
	{regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`), "[REDACTED_DOB]"},
	{regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December) \d{1,2},? \d{4}\b`), "[REDACTED_DOB]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[REDACTED_SSN]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPHI masks provider NPIs, member and claim identifiers, dates of
// birth and contact details.
func RedactPHI(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactionRules {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// MaskID keeps the last four characters of an identifier.
func MaskID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}
