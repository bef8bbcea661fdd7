package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	// Identifiers such as NPIs, member IDs and claim numbers: an optional
	// letter prefix, then a run of at least four digits with optional dashes.
	speechIdentifierPattern = regexp.MustCompile(`\b([A-Z]{1,4}-)?\d[\d-]{3,}\d\b`)
	speechDatePattern       = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
)

// speakableText prepares a transcript line for a speech engine: markup and
// symbol noise are dropped, and identifiers are spelled out character by
// character so engines read "1 4 5 6" rather than "one million...".
// Dates are left intact.
func speakableText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = speechMarkdownLinkPattern.ReplaceAllString(raw, "$1")
	raw = speechURLPattern.ReplaceAllString(raw, " ")

	dates := speechDatePattern.FindAllString(raw, -1)
	raw = speechDatePattern.ReplaceAllString(raw, "\x00")
	raw = speechIdentifierPattern.ReplaceAllStringFunc(raw, spellIdentifier)
	for _, d := range dates {
		raw = strings.Replace(raw, "\x00", d, 1)
	}

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"<", " ",
		">", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			continue
		case isSpeechSafePunctuation(r):
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsPunct(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// spellIdentifier turns "BCX-4827" into "B C X, 4 8 2 7".
func spellIdentifier(id string) string {
	groups := strings.FieldsFunc(id, func(r rune) bool { return r == '-' })
	spelled := make([]string, 0, len(groups))
	for _, g := range groups {
		chars := make([]string, 0, len(g))
		for _, r := range g {
			chars = append(chars, string(r))
		}
		spelled = append(spelled, strings.Join(chars, " "))
	}
	return strings.Join(spelled, ", ")
}

func isSpeechSafePunctuation(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '/', '$', '%':
		return true
	default:
		return false
	}
}
