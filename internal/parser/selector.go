package parser

import "strings"

// SelectorKind distinguishes CSS selectors from XPath expressions.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
)

func (k SelectorKind) String() string {
	if k == KindXPath {
		return "xpath"
	}
	return "css"
}

// xpathPrefix forces XPath interpretation of a configured selector.
const xpathPrefix = "xpath:"

// Selector is a typed element query.
type Selector struct {
	Kind SelectorKind
	Expr string
}

// CSS returns a CSS selector.
func CSS(expr string) Selector { return Selector{Kind: KindCSS, Expr: expr} }

// XPath returns an XPath selector.
func XPath(expr string) Selector { return Selector{Kind: KindXPath, Expr: expr} }

// ParseSelector types a configured selector string. Strings prefixed with
// "xpath:" or starting with "/", "./" or "(" are XPath; everything else is
// CSS.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, xpathPrefix) {
		return XPath(strings.TrimSpace(strings.TrimPrefix(s, xpathPrefix)))
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(") {
		return XPath(s)
	}
	return CSS(s)
}

// ParseSelectors types a list of configured selectors, skipping blanks.
func ParseSelectors(list []string) []Selector {
	out := make([]Selector, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, ParseSelector(s))
	}
	return out
}

func (s Selector) String() string {
	return s.Kind.String() + ":" + s.Expr
}
