package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// BrowserSession implements Page on a single tab of a headless Chromium
// driven through Rod.
type BrowserSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	cfg      config.BrowserConfig
	logger   *slog.Logger

	current   atomic.Value // string
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenBrowser launches Chromium and opens a blank tab.
func OpenBrowser(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (*BrowserSession, error) {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("window-size", "1366,900")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			logger.Warn("failed to set user agent", "error", err)
		}
	}

	s := &BrowserSession{
		launcher: l,
		browser:  browser,
		page:     page,
		cfg:      cfg,
		logger:   logger.With("component", "browser_session"),
	}
	s.current.Store("")
	s.logger.Info("browser session ready", "headless", cfg.Headless)
	return s, nil
}

// Navigate loads url and waits for the load event.
func (s *BrowserSession) Navigate(ctx context.Context, url string) error {
	if s.closed.Load() {
		return types.ErrSessionClosed
	}
	p := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	s.current.Store(url)
	return nil
}

// WaitFor polls until sel matches or timeout elapses.
func (s *BrowserSession) WaitFor(ctx context.Context, sel parser.Selector, timeout time.Duration) ([]Element, error) {
	if s.closed.Load() {
		return nil, types.ErrSessionClosed
	}
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	var err error
	if sel.Kind == parser.KindXPath {
		_, err = p.ElementX(sel.Expr)
	} else {
		_, err = p.Element(sel.Expr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.ErrWaitTimeout
		}
		return nil, fmt.Errorf("wait for %s: %w", sel, err)
	}
	return s.FindAll(ctx, sel)
}

// FindAll queries the current document.
func (s *BrowserSession) FindAll(ctx context.Context, sel parser.Selector) ([]Element, error) {
	if s.closed.Load() {
		return nil, types.ErrSessionClosed
	}
	p := s.page.Context(ctx)

	var (
		els rod.Elements
		err error
	)
	if sel.Kind == parser.KindXPath {
		els, err = p.ElementsX(sel.Expr)
	} else {
		els, err = p.Elements(sel.Expr)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sel, err)
	}
	return wrapRodElements(els), nil
}

// Eval runs js in the page.
func (s *BrowserSession) Eval(ctx context.Context, js string) (string, error) {
	if s.closed.Load() {
		return "", types.ErrSessionClosed
	}
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// URL returns the last navigated address.
func (s *BrowserSession) URL() string {
	u, _ := s.current.Load().(string)
	return u
}

// Close shuts down the tab, the browser and the launcher process.
func (s *BrowserSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.page.Close(); err != nil {
			s.logger.Debug("close tab", "error", err)
		}
		s.closeErr = s.browser.Close()
		s.launcher.Cleanup()
		s.logger.Info("browser session closed")
	})
	return s.closeErr
}

// --- Elements ---

type rodElement struct {
	el *rod.Element
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out
}

func (e *rodElement) FindAll(ctx context.Context, sel parser.Selector) ([]Element, error) {
	el := e.el.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if sel.Kind == parser.KindXPath {
		els, err = el.ElementsX(sel.Expr)
	} else {
		els, err = el.Elements(sel.Expr)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", sel, err)
	}
	return wrapRodElements(els), nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// ScrollIntoView centres the element in the viewport.
func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	el := e.el.Context(ctx)
	if _, err := el.Eval(`() => this.scrollIntoView({block: "center"})`); err != nil {
		return el.ScrollIntoView()
	}
	return nil
}

func (e *rodElement) Eval(ctx context.Context, js string) (string, error) {
	res, err := e.el.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) IsStale(ctx context.Context) bool {
	res, err := e.el.Context(ctx).Eval(`() => this.isConnected`)
	if err != nil {
		return true
	}
	return !res.Value.Bool()
}
