// Package content converts fetched HTML into plain text suitable for
// classification prompts.
package content

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Processor extracts readable text from raw HTML
type Processor struct {
	converter *md.Converter
	maxLength int
}

// NewProcessor creates a content processor. maxLength bounds the extracted
// text; zero means no bound.
func NewProcessor(maxLength int) *Processor {
	converter := md.NewConverter("", true, nil)
	return &Processor{
		converter: converter,
		maxLength: maxLength,
	}
}

// Extract strips boilerplate elements and converts the remaining HTML to
// markdown text. Returns an error only when the HTML cannot be parsed at all.
func (p *Processor) Extract(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Remove elements that never carry product lifecycle information
	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	inner, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}

	markdown, err := p.converter.ConvertString(inner)
	if err != nil {
		// Fall back to plain text extraction when conversion fails
		markdown = body.Text()
	}

	markdown = strings.TrimSpace(collapseBlankLines(markdown))
	if p.maxLength > 0 && len(markdown) > p.maxLength {
		markdown = markdown[:p.maxLength]
	}

	return markdown, nil
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
