package markdown

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// FromProductHTML converts a retailer's product description HTML into
// markdown. Script, style and embedded media tags are stripped first; the
// description fragments stores ship are messy but small, so a failed parse
// just yields the empty string.
func FromProductHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe, svg, form, button, input").Each(func(_ int, s *goquery.Selection) { s.Remove() })

	body, err := doc.Find("body").Html()
	if err != nil {
		return ""
	}

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(body)
	if err != nil {
		return ""
	}

	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
