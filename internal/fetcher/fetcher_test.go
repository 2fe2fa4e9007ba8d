package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/jarcoal/httpmock"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	page1URL = "https://shop.example/widget-yorumlari"
	page2URL = "https://shop.example/widget-yorumlari?sayfa=2"
)

func newTestSession() (*StaticSession, *MemorySource) {
	src := NewMemorySource(map[string]string{
		page1URL: `<html><body>
			<div class="card"><span>first</span></div>
			<ul><li class="page"><a href="?sayfa=2"><span>2</span></a></li></ul>
		</body></html>`,
		page2URL: `<html><body><div class="card"><span>second</span></div></body></html>`,
	})
	return NewStaticSession(src, testLogger), src
}

// --- Static Session Tests ---

func TestStaticSessionNavigateAndQuery(t *testing.T) {
	ctx := context.Background()
	s, src := newTestSession()

	if err := s.Navigate(ctx, page1URL); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if s.URL() != page1URL {
		t.Errorf("expected URL %s, got %s", page1URL, s.URL())
	}
	if src.Hits(page1URL) != 1 {
		t.Errorf("expected 1 hit, got %d", src.Hits(page1URL))
	}

	cards, err := s.WaitFor(ctx, parser.CSS("div.card"), time.Second)
	if err != nil || len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d (%v)", len(cards), err)
	}
	spans, err := cards[0].FindAll(ctx, parser.XPath(".//span"))
	if err != nil || len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d (%v)", len(spans), err)
	}
	text, err := spans[0].Text(ctx)
	if err != nil || text != "first" {
		t.Errorf("expected text 'first', got %q (%v)", text, err)
	}
}

func TestStaticSessionWaitForTimeout(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession()
	if err := s.Navigate(ctx, page2URL); err != nil {
		t.Fatal(err)
	}
	_, err := s.WaitFor(ctx, parser.CSS("li.page"), time.Second)
	if !errors.Is(err, types.ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestStaticSessionClickFollowsLinkAndStales(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession()
	if err := s.Navigate(ctx, page1URL); err != nil {
		t.Fatal(err)
	}

	cards, _ := s.FindAll(ctx, parser.CSS("div.card"))
	labels, _ := s.FindAll(ctx, parser.XPath("//li//span[normalize-space()='2']"))
	if len(labels) != 1 {
		t.Fatalf("expected page label, got %d", len(labels))
	}
	li, _ := labels[0].FindAll(ctx, parser.XPath("./ancestor::li[1]"))
	if len(li) != 1 {
		t.Fatalf("expected li ancestor, got %d", len(li))
	}

	if cards[0].IsStale(ctx) {
		t.Fatal("card should not be stale before click")
	}
	if err := li[0].Click(ctx); err != nil {
		t.Fatalf("click: %v", err)
	}
	if s.URL() != page2URL {
		t.Errorf("expected %s after click, got %s", page2URL, s.URL())
	}
	if !cards[0].IsStale(ctx) {
		t.Error("expected old card to be stale after navigation")
	}
	if _, err := cards[0].Text(ctx); !errors.Is(err, types.ErrStale) {
		t.Errorf("expected ErrStale from stale element, got %v", err)
	}
}

func TestStaticSessionUnsupportedAndClosed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession()
	if err := s.Navigate(ctx, page2URL); err != nil {
		t.Fatal(err)
	}
	cards, _ := s.FindAll(ctx, parser.CSS("div.card"))
	if _, err := cards[0].Eval(ctx, "() => this.textContent"); !errors.Is(err, types.ErrUnsupportedOp) {
		t.Errorf("expected ErrUnsupportedOp, got %v", err)
	}
	if err := cards[0].Click(ctx); !errors.Is(err, types.ErrUnsupportedOp) {
		t.Errorf("expected ErrUnsupportedOp for click without link, got %v", err)
	}

	_ = s.Close()
	if err := s.Navigate(ctx, page1URL); !errors.Is(err, types.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestMemorySourceUnknownURL(t *testing.T) {
	src := NewMemorySource(nil)
	if _, err := src.Load(context.Background(), "https://nope.example"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- HTTP Source Tests ---

func newMockedSource(t *testing.T) (*HTTPSource, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig().Browser
	src, err := NewHTTPSource(cfg, testLogger)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	mt := httpmock.NewMockTransport()
	src.client.Transport = mt
	return src, mt
}

func TestHTTPSourceBrotli(t *testing.T) {
	src, mt := newMockedSource(t)

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, _ = w.Write([]byte("<html><body><p>merhaba</p></body></html>"))
	_ = w.Close()

	mt.RegisterResponder("GET", "https://shop.example/a", func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.Header.Get("Accept-Encoding"), "br") {
			t.Errorf("expected br in Accept-Encoding, got %q", req.Header.Get("Accept-Encoding"))
		}
		resp := httpmock.NewBytesResponse(200, buf.Bytes())
		resp.Header.Set("Content-Encoding", "br")
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	})

	body, err := src.Load(context.Background(), "https://shop.example/a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(string(body), "merhaba") {
		t.Errorf("expected decompressed body, got %q", body)
	}
}

func TestHTTPSourceCharset(t *testing.T) {
	src, mt := newMockedSource(t)

	raw := append([]byte("<html><body><p>"), 0xFE, 0xFC)
	raw = append(raw, []byte("</p></body></html>")...)
	mt.RegisterResponder("GET", "https://shop.example/tr", func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(200, raw)
		resp.Header.Set("Content-Type", "text/html; charset=iso-8859-9")
		return resp, nil
	})

	body, err := src.Load(context.Background(), "https://shop.example/tr")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(string(body), "şü") {
		t.Errorf("expected UTF-8 decoded Turkish text, got %q", body)
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	src, mt := newMockedSource(t)
	mt.RegisterResponder("GET", "https://shop.example/down", httpmock.NewStringResponder(503, "busy"))

	_, err := src.Load(context.Background(), "https://shop.example/down")
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != 503 {
		t.Errorf("expected HTTPStatusError 503, got %v", err)
	}
}
