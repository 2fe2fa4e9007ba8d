package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is a parsed static HTML page.
type Document struct {
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// FindAll returns the nodes matching sel inside the whole document.
func (d *Document) FindAll(sel Selector) ([]*html.Node, error) {
	return FindAll(d.root, sel)
}

// FindAll returns the nodes matching sel relative to scope. CSS selectors
// match descendants of scope; XPath expressions are evaluated with scope
// as the context node.
func FindAll(scope *html.Node, sel Selector) ([]*html.Node, error) {
	if scope == nil {
		return nil, nil
	}
	switch sel.Kind {
	case KindXPath:
		nodes, err := htmlquery.QueryAll(scope, sel.Expr)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", sel.Expr, err)
		}
		return nodes, nil
	default:
		return goquery.NewDocumentFromNode(scope).Find(sel.Expr).Nodes, nil
	}
}

// Text returns the textContent of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.InnerText(n)
}

// Attr returns the value of attribute name and whether it is present.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// LinkTarget returns the href a click on n would follow: n itself, then
// its first descendant anchor, then its nearest ancestor anchor.
func LinkTarget(n *html.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	if href, ok := Attr(n, "href"); ok {
		return href, true
	}
	if a := htmlquery.FindOne(n, ".//a[@href]"); a != nil {
		return htmlquery.SelectAttr(a, "href"), true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "a" {
			if href, ok := Attr(p, "href"); ok {
				return href, true
			}
		}
	}
	return "", false
}
