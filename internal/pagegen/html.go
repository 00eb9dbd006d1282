package pagegen

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return ""
	}
	body := trimmed[nl+1:]
	body = strings.TrimRightFunc(body, isSpace)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// Title returns the document title, falling back to the first heading.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if t := collapse(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return collapse(doc.Find("h1").First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
