package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceRegex   = regexp.MustCompile(`[^\S\n]+`)
	newlineRegex = regexp.MustCompile(`\n{3,}`)
)

// TextSnippet renders an HTML mail body as plain text, truncated to maxLen
// runes. Used for diagnostics when code extraction comes up empty.
func TextSnippet(html string, maxLen int) string {
	text, err := htmlToText(html)
	if err != nil || text == "" {
		text = strings.TrimSpace(html)
	}
	runes := []rune(text)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}

func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements become line breaks
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := spaceRegex.ReplaceAllString(doc.Text(), " ")

	lines := strings.Split(text, "\n")
	var clean []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	text = newlineRegex.ReplaceAllString(strings.Join(clean, "\n"), "\n\n")

	return strings.TrimSpace(text), nil
}
