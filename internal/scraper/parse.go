package scraper

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxHeadings       = 10
	maxParagraphs     = 20
	minParagraphChars = 50
)

// Page is the business-relevant content extracted from one HTML document.
type Page struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Headings        []string `json:"headings"`
	BodyText        string   `json:"body_text"`
}

// Parse extracts title, meta description, h1-h3 headings and substantive
// paragraphs. Script, style, nav, footer and iframe subtrees are ignored.
func Parse(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &Page{Headings: []string{}}
	var paragraphs []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "iframe", "noscript":
				return
			case "title":
				if page.Title == "" {
					page.Title = textOf(n)
				}
				return
			case "meta":
				if strings.EqualFold(attr(n, "name"), "description") && page.MetaDescription == "" {
					page.MetaDescription = strings.TrimSpace(attr(n, "content"))
				}
			case "h1", "h2", "h3":
				if t := textOf(n); t != "" && len(page.Headings) < maxHeadings {
					page.Headings = append(page.Headings, t)
				}
				return
			case "p":
				if t := textOf(n); len(t) > minParagraphChars && len(paragraphs) < maxParagraphs {
					paragraphs = append(paragraphs, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.BodyText = strings.Join(paragraphs, "\n")
	return page, nil
}

// textOf returns the whitespace-collapsed text below n, skipping script-like nodes.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "iframe":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
