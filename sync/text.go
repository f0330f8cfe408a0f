// ABOUTME: Plain-text extraction from HTML email bodies
// ABOUTME: Uses goquery to drop markup, scripts, and styles and collapse whitespace
package sync

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText returns the visible text of an HTML fragment with runs of
// whitespace collapsed to single spaces.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}

	doc.Find("script, style, head").Remove()
	doc.Find("br, p, div, tr, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}
