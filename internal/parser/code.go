package parser

import (
	"regexp"
	"strings"
)

// CodeExtractor finds signup verification codes in raw mail bodies.
// Patterns are tried in order; the first one that yields a valid 6-character
// alphanumeric code wins.
type CodeExtractor struct {
	patterns []*regexp.Regexp
}

// NewCodeExtractor creates a new code extractor
func NewCodeExtractor() *CodeExtractor {
	return &CodeExtractor{
		patterns: []*regexp.Regexp{
			// Labelled verification-code span
			regexp.MustCompile(`(?is)class=["']?verification-code["']?[^>]*>([A-Z0-9]{6})</span>`),
			regexp.MustCompile(`(?is)verification-code[^>]*>([A-Z0-9]{6})<`),
			// Bare span holding exactly the code
			regexp.MustCompile(`(?is)>([A-Z0-9]{6})</span>`),
			// Large-font code block
			regexp.MustCompile(`(?is)font-size:\s*28px[^>]*>([A-Z0-9]{6})<`),
		},
	}
}

// Normalize undoes quoted-printable soft line breaks and =3D escapes so the
// patterns can match across the provider's wrapped raw text. Running it on
// already-normalized text is a no-op.
func Normalize(body string) string {
	body = strings.ReplaceAll(body, "=\r\n", "")
	body = strings.ReplaceAll(body, "=\n", "")
	body = strings.ReplaceAll(body, "=3D", "=")
	return body
}

// Extract normalizes body and returns the first verification code found
func (e *CodeExtractor) Extract(body string) (string, bool) {
	cleaned := Normalize(body)
	for _, pattern := range e.patterns {
		match := pattern.FindStringSubmatch(cleaned)
		if len(match) < 2 {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(match[1]))
		if isCode(code) {
			return code, true
		}
	}
	return "", false
}

func isCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
