package erp

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// htmlToText extracts the visible text of an HTML document, dropping
// scripts, styles and markup. Used to make HTML error pages readable in
// error messages.
func htmlToText(data []byte) string {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return strings.TrimSpace(string(data))
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch strings.ToLower(n.Data) {
			case "script", "style", "noscript":
				return
			}
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(parts, " ")
}
