package ogimage

import (
	"strings"

	"golang.org/x/net/html"
)

// PageTitle returns the text of the first <title> element in document.
func PageTitle(document string) string {
	z := html.NewTokenizer(strings.NewReader(document))
	inTitle := false
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return normalizeWhitespace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && string(name) == "title" {
				return normalizeWhitespace(b.String())
			}
		case html.TextToken:
			if inTitle {
				b.Write(z.Text())
			}
		}
	}
}
