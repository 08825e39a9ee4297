// Package extract derives display material from a captured page: its title,
// a Markdown rendering for text-only previews, and a sanitized HTML copy.
package extract

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Title returns the text of the first <title> element, whitespace collapsed.
// Returns "" when the page has none or cannot be parsed.
func Title(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	n := findFirst(doc, atom.Title)
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func findFirst(n *html.Node, tag atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

var (
	mdOnce      sync.Once
	mdConverter *converter.Converter

	ugcOnce   sync.Once
	ugcPolicy *bluemonday.Policy
)

// Markdown converts page HTML to Markdown. pageURL, when set, is used to
// resolve relative links.
func Markdown(page, pageURL string) (string, error) {
	mdOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})

	var (
		out string
		err error
	)
	if pageURL != "" {
		out, err = mdConverter.ConvertString(page, converter.WithDomain(pageURL))
	} else {
		out, err = mdConverter.ConvertString(page)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Sanitize strips scripts, event handlers and other active content, keeping
// the markup bluemonday's UGC policy allows.
func Sanitize(page string) string {
	ugcOnce.Do(func() {
		ugcPolicy = bluemonday.UGCPolicy()
		ugcPolicy.AllowStyling()
	})
	return ugcPolicy.Sanitize(page)
}
