// Package fetcher provides the rendering sessions the crawl engine drives:
// a headless Chromium session via Rod and a static session that parses
// server-rendered HTML.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
)

// Page is one rendering session showing one document at a time.
type Page interface {
	// Navigate loads url and blocks until the document has loaded.
	Navigate(ctx context.Context, url string) error

	// WaitFor blocks until at least one element matches sel and returns all
	// matches. It returns types.ErrWaitTimeout when nothing matched within
	// timeout.
	WaitFor(ctx context.Context, sel parser.Selector, timeout time.Duration) ([]Element, error)

	// FindAll returns the current matches of sel without waiting.
	FindAll(ctx context.Context, sel parser.Selector) ([]Element, error)

	// Eval runs a script in the page and returns its result as a string.
	Eval(ctx context.Context, js string) (string, error)

	// URL returns the address of the current document.
	URL() string

	// Close releases the session.
	Close() error
}

// Element is a handle to a node of the document a Page showed when the
// handle was obtained.
type Element interface {
	FindAll(ctx context.Context, sel parser.Selector) ([]Element, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Click(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error

	// Eval runs a function expression with this bound to the element.
	Eval(ctx context.Context, js string) (string, error)

	// IsStale reports whether the node has left the document.
	IsStale(ctx context.Context) bool
}

// Open starts the rendering session selected by cfg.Type.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (Page, error) {
	switch cfg.Type {
	case "rod", "":
		return OpenBrowser(ctx, cfg, logger)
	case "static":
		src, err := NewHTTPSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewStaticSession(src, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser type %q", cfg.Type)
	}
}
