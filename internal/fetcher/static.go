package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Source loads the raw HTML of a URL.
type Source interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// StaticSession implements Page over server-rendered HTML. Nothing
// executes in the page: clicking an element follows its link target and
// every navigation invalidates all previously returned elements.
type StaticSession struct {
	source Source
	logger *slog.Logger

	mu     sync.RWMutex
	doc    *parser.Document
	url    string
	gen    uint64
	closed bool
}

// NewStaticSession creates a session reading documents from source.
func NewStaticSession(source Source, logger *slog.Logger) *StaticSession {
	return &StaticSession{
		source: source,
		logger: logger.With("component", "static_session"),
	}
}

// Navigate loads and parses rawURL.
func (s *StaticSession) Navigate(ctx context.Context, rawURL string) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return types.ErrSessionClosed
	}

	body, err := s.source.Load(ctx, rawURL)
	if err != nil {
		return err
	}
	doc, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.doc = doc
	s.url = rawURL
	s.gen++
	s.mu.Unlock()

	s.logger.Debug("document loaded", "url", rawURL, "size", len(body))
	return nil
}

// WaitFor returns the current matches. A static document never changes,
// so an empty result is reported as a timeout straight away.
func (s *StaticSession) WaitFor(ctx context.Context, sel parser.Selector, _ time.Duration) ([]Element, error) {
	els, err := s.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, types.ErrWaitTimeout
	}
	return els, nil
}

// FindAll queries the current document.
func (s *StaticSession) FindAll(ctx context.Context, sel parser.Selector) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	doc, gen, closed := s.doc, s.gen, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, types.ErrSessionClosed
	}
	if doc == nil {
		return nil, nil
	}
	nodes, err := doc.FindAll(sel)
	if err != nil {
		return nil, err
	}
	return s.wrap(nodes, gen), nil
}

// Eval is not supported without a script engine.
func (s *StaticSession) Eval(context.Context, string) (string, error) {
	return "", types.ErrUnsupportedOp
}

// URL returns the address of the current document.
func (s *StaticSession) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Close marks the session closed.
func (s *StaticSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.doc = nil
	s.mu.Unlock()
	return nil
}

func (s *StaticSession) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *StaticSession) wrap(nodes []*html.Node, gen uint64) []Element {
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = &staticElement{session: s, node: n, gen: gen}
	}
	return out
}

type staticElement struct {
	session *StaticSession
	node    *html.Node
	gen     uint64
}

func (e *staticElement) FindAll(ctx context.Context, sel parser.Selector) ([]Element, error) {
	if e.IsStale(ctx) {
		return nil, types.ErrStale
	}
	nodes, err := parser.FindAll(e.node, sel)
	if err != nil {
		return nil, err
	}
	return e.session.wrap(nodes, e.gen), nil
}

func (e *staticElement) Text(ctx context.Context) (string, error) {
	if e.IsStale(ctx) {
		return "", types.ErrStale
	}
	return parser.Text(e.node), nil
}

func (e *staticElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if e.IsStale(ctx) {
		return "", false, types.ErrStale
	}
	v, ok := parser.Attr(e.node, name)
	return v, ok, nil
}

// Click follows the element's link target, resolved against the current
// document URL.
func (e *staticElement) Click(ctx context.Context) error {
	if e.IsStale(ctx) {
		return types.ErrStale
	}
	href, ok := parser.LinkTarget(e.node)
	if !ok {
		return fmt.Errorf("%w: click on element without link target", types.ErrUnsupportedOp)
	}
	target, err := resolveURL(e.session.URL(), href)
	if err != nil {
		return err
	}
	return e.session.Navigate(ctx, target)
}

func (e *staticElement) ScrollIntoView(ctx context.Context) error {
	if e.IsStale(ctx) {
		return types.ErrStale
	}
	return nil
}

func (e *staticElement) Eval(context.Context, string) (string, error) {
	return "", types.ErrUnsupportedOp
}

func (e *staticElement) IsStale(context.Context) bool {
	return e.gen != e.session.generation()
}

func resolveURL(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	return b.ResolveReference(r).String(), nil
}

// MemorySource serves pages from a map keyed by URL. It backs replays of
// captured pages.
type MemorySource struct {
	mu    sync.RWMutex
	pages map[string]string
	hits  map[string]int
}

// NewMemorySource creates a MemorySource with the given pages.
func NewMemorySource(pages map[string]string) *MemorySource {
	m := &MemorySource{pages: make(map[string]string, len(pages)), hits: make(map[string]int)}
	for k, v := range pages {
		m.pages[k] = v
	}
	return m
}

// Set adds or replaces a page.
func (m *MemorySource) Set(url, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[url] = body
}

// Load returns the stored page or an error for unknown URLs.
func (m *MemorySource) Load(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s: %w", url, types.ErrNotFound)
	}
	m.hits[url]++
	return []byte(body), nil
}

// Hits returns how many times url was loaded.
func (m *MemorySource) Hits(url string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits[url]
}
