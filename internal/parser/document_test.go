package parser

import (
	"strings"
	"testing"
)

const testHTML = `<!DOCTYPE html>
<html>
<body>
  <div class="paginationBarHolder">
    <ul class="hermes-PaginationBar-module-x1">
      <li class="hermes-PageHolder-module-a"><a href="?sayfa=1"><span>1</span></a></li>
      <li class="hermes-PageHolder-module-a"><a href="?sayfa=2"><span> 2 </span></a></li>
      <li class="hermes-PageHolder-module-a"><span>...</span></li>
    </ul>
  </div>
  <article class="productCard-module_x">
    <a class="productCardLink-module_y" href="/urun-1-p-1">Ürün 1</a>
  </article>
  <article class="productCard-module_x">
    <a class="productCardLink-module_y" href="https://www.hepsiburada.com/urun-2-p-2">Ürün 2</a>
  </article>
</body>
</html>`

func mustParse(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(testHTML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		kind SelectorKind
		expr string
	}{
		{"article[class^='productCard-module']", KindCSS, "article[class^='productCard-module']"},
		{"//div[@id='x']", KindXPath, "//div[@id='x']"},
		{".//span", KindXPath, ".//span"},
		{"(//li)[1]", KindXPath, "(//li)[1]"},
		{"xpath: ancestor::li[1]", KindXPath, "ancestor::li[1]"},
		{".title", KindCSS, ".title"},
	}
	for _, tt := range tests {
		got := ParseSelector(tt.in)
		if got.Kind != tt.kind || got.Expr != tt.expr {
			t.Errorf("ParseSelector(%q) = %v, want %s:%s", tt.in, got, tt.kind, tt.expr)
		}
	}

	if n := len(ParseSelectors([]string{"a", " ", "//b"})); n != 2 {
		t.Errorf("expected blanks skipped, got %d selectors", n)
	}
}

func TestFindAllCSSAndXPath(t *testing.T) {
	doc := mustParse(t)

	cards, err := doc.FindAll(CSS("article[class^='productCard-module']"))
	if err != nil {
		t.Fatalf("css: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}

	links, err := FindAll(cards[0], CSS("a[class*='productCardLink-module']"))
	if err != nil || len(links) != 1 {
		t.Fatalf("expected 1 scoped link, got %d (%v)", len(links), err)
	}
	if href, ok := Attr(links[0], "href"); !ok || href != "/urun-1-p-1" {
		t.Errorf("unexpected href %q", href)
	}

	labels, err := doc.FindAll(XPath("//li[contains(@class,'hermes-PageHolder-module-')]//span[normalize-space()]"))
	if err != nil {
		t.Fatalf("xpath: %v", err)
	}
	if len(labels) != 3 {
		t.Errorf("expected 3 labels, got %d", len(labels))
	}

	two, err := doc.FindAll(XPath("//li//span[normalize-space()='2']"))
	if err != nil || len(two) != 1 {
		t.Fatalf("expected page 2 label, got %d (%v)", len(two), err)
	}
	li, err := FindAll(two[0], XPath("./ancestor::li[1]"))
	if err != nil || len(li) != 1 || li[0].Data != "li" {
		t.Fatalf("expected li ancestor, got %v (%v)", li, err)
	}
	if href, ok := LinkTarget(li[0]); !ok || href != "?sayfa=2" {
		t.Errorf("expected descendant link ?sayfa=2, got %q", href)
	}
	if href, ok := LinkTarget(two[0]); !ok || href != "?sayfa=2" {
		t.Errorf("expected ancestor link ?sayfa=2, got %q", href)
	}
}

func TestFindAllBadXPath(t *testing.T) {
	doc := mustParse(t)
	if _, err := doc.FindAll(XPath("//li[")); err == nil {
		t.Error("expected error for malformed xpath")
	}
}

func TestTextAndAttr(t *testing.T) {
	doc := mustParse(t)
	links, _ := doc.FindAll(CSS("a.productCardLink-module_y"))
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if got := strings.TrimSpace(Text(links[1])); got != "Ürün 2" {
		t.Errorf("unexpected text %q", got)
	}
	if _, ok := Attr(links[1], "data-missing"); ok {
		t.Error("expected missing attribute")
	}
	if Text(nil) != "" {
		t.Error("expected empty text for nil node")
	}
}
