package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/fetcher"
	"github.com/serkaneren68/ASBA-NLP/internal/notify"
	"github.com/serkaneren68/ASBA-NLP/internal/observability"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/pipeline"
	"github.com/serkaneren68/ASBA-NLP/internal/storage"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// RunSummary reports a finished (or interrupted) crawl run.
type RunSummary struct {
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished"`
	Categories []*CategoryResult `json:"categories"`
	Visited    int               `json:"visited"`
	Stats      StatsSnapshot     `json:"stats"`
	Resumed    bool              `json:"resumed"`
}

// Session owns the rendering session, the store and the event publisher
// for the lifetime of a run.
type Session struct {
	cfg        *config.Config
	page       fetcher.Page
	store      storage.Store
	publisher  notify.Publisher
	metrics    *observability.Metrics
	stats      *Stats
	visited    *VisitedSet
	checkpoint *CheckpointManager
	resume     bool
	base       *slog.Logger
	logger     *slog.Logger
	state      atomic.Value // RunState

	closeOnce sync.Once
	closeErr  error
}

// RunState is the lifecycle state of a session's crawl run.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunFinished  RunState = "finished"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Option configures a Session.
type Option func(*Session)

// WithPage uses p instead of opening the configured renderer. The session
// takes ownership of p.
func WithPage(p fetcher.Page) Option {
	return func(s *Session) { s.page = p }
}

// WithStore uses st instead of opening the configured store. The session
// takes ownership of st.
func WithStore(st storage.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithPublisher sets the page event publisher.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Session) { s.publisher = p }
}

// WithMetrics records crawl metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithResume restores state from the configured checkpoint before running.
func WithResume(resume bool) Option {
	return func(s *Session) { s.resume = resume }
}

// OpenSession validates cfg and opens the store, the renderer and the
// publisher. Anything opened before a failure is closed again.
func OpenSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		stats:   &Stats{},
		visited: NewVisitedSet(1024),
		base:    logger,
		logger:  logger.With("component", "session"),
	}
	s.state.Store(RunIdle)
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		st, err := storage.Open(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	if s.page == nil {
		page, err := fetcher.Open(ctx, cfg.Browser, logger)
		if err != nil {
			_ = s.store.Close()
			return nil, fmt.Errorf("open renderer: %w", err)
		}
		s.page = page
	}
	if s.publisher == nil {
		pub, err := notify.New(ctx, cfg.Notify, logger)
		if err != nil {
			_ = s.page.Close()
			_ = s.store.Close()
			return nil, fmt.Errorf("open publisher: %w", err)
		}
		s.publisher = pub
	}
	if cfg.Crawl.CheckpointPath != "" {
		s.checkpoint = NewCheckpointManager(cfg.Crawl.CheckpointPath)
	}

	s.logger.Info("session open", "renderer", cfg.Browser.Type, "store", s.store.Name())
	return s, nil
}

// WithSession opens a session, runs fn and closes the session on every
// exit path.
func WithSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, fn func(context.Context, *Session) error, opts ...Option) (err error) {
	s, err := OpenSession(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}

// Store returns the session's store.
func (s *Session) Store() storage.Store { return s.store }

// Stats returns the live run counters.
func (s *Session) Stats() *Stats { return s.stats }

// State returns the current run state.
func (s *Session) State() RunState {
	st, _ := s.state.Load().(RunState)
	return st
}

// Snapshot returns a copy of the live run counters.
func (s *Session) Snapshot() StatsSnapshot { return s.stats.Snapshot() }

// StoreStats summarizes the store contents.
func (s *Session) StoreStats(ctx context.Context) (*types.StoreStats, error) {
	return s.store.Stats(ctx)
}

// Run crawls every configured category in order. Storage failures,
// configuration errors and cancellation end the run; everything else is
// logged and skipped.
func (s *Session) Run(ctx context.Context) (*RunSummary, error) {
	cfg := s.cfg.Crawl
	if len(cfg.CategoryURLs) == 0 {
		return nil, &types.ConfigError{Field: "crawl.category_urls", Err: types.ErrNoCategories}
	}

	s.state.Store(RunRunning)
	summary := &RunSummary{Started: time.Now()}
	progress := map[string]CategoryProgress{}
	if s.checkpoint != nil && s.resume {
		var err error
		progress, err = s.checkpoint.Load(s.visited, s.stats)
		if err != nil {
			s.state.Store(RunFailed)
			return nil, err
		}
		summary.Resumed = len(progress) > 0
		s.logger.Info("checkpoint restored", "path", s.checkpoint.Path(), "visited", s.visited.Len(), "categories", len(progress))
	}
	s.stats.MarkStarted(summary.Started)

	crawler := s.newCategoryCrawler(func(category string, next int) error {
		progress[category] = CategoryProgress{NextPage: next}
		return s.saveCheckpoint(progress)
	})

	var runErr error
	for _, base := range cfg.CategoryURLs {
		start := cfg.StartPage
		if p, ok := progress[base]; ok {
			if p.Done {
				summary.Categories = append(summary.Categories, &CategoryResult{URL: base, Stop: StopAlreadyDone, NextPage: p.NextPage})
				continue
			}
			start = max(start, p.NextPage)
		}

		res, err := crawler.Crawl(ctx, base, start)
		summary.Categories = append(summary.Categories, res)
		if err != nil {
			if types.IsFatal(err) || ctx.Err() != nil {
				runErr = err
				break
			}
			s.logger.Warn("category failed", "category", base, "error", err)
			continue
		}

		progress[base] = CategoryProgress{NextPage: res.NextPage, Done: true}
		if err := s.saveCheckpoint(progress); err != nil {
			s.logger.Warn("checkpoint not saved", "error", err)
		}
		s.logger.Info("category done",
			"category", base,
			"pages", res.Pages,
			"products", res.Products,
			"failed", res.ProductsFailed,
			"inserted", res.Inserted,
			"stop", string(res.Stop),
		)
	}

	summary.Finished = time.Now()
	summary.Visited = s.visited.Len()
	summary.Stats = s.stats.Snapshot()

	if runErr != nil {
		if types.IsFatal(runErr) {
			s.state.Store(RunFailed)
			s.logger.Error("run aborted", "error", runErr)
		} else {
			s.state.Store(RunCancelled)
		}
		return summary, runErr
	}
	s.state.Store(RunFinished)
	if s.checkpoint != nil {
		if err := s.checkpoint.Clean(); err != nil {
			s.logger.Warn("checkpoint not removed", "error", err)
		}
	}
	return summary, nil
}

// Enrich back-fills category paths for up to limit products.
func (s *Session) Enrich(ctx context.Context, limit int) (*EnrichSummary, error) {
	e := &Enricher{
		page:        s.page,
		nav:         s.newNavigator(),
		store:       s.store,
		breadcrumb:  parser.ParseSelector(s.cfg.Selectors.Breadcrumb),
		waitTimeout: s.cfg.Browser.WaitTimeout,
		sleep:       s.cfg.Crawl.SleepBetweenRequests,
		logger:      s.base.With("component", "enricher"),
	}
	return e.Run(ctx, limit)
}

// Close releases the renderer, the publisher and the store. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		if s.publisher != nil {
			errs = append(errs, s.publisher.Close())
		}
		if s.store != nil {
			errs = append(errs, s.store.Close())
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("session closed")
	})
	return s.closeErr
}

func (s *Session) saveCheckpoint(progress map[string]CategoryProgress) error {
	if s.checkpoint == nil {
		return nil
	}
	return s.checkpoint.Save(s.visited, progress, s.stats)
}

func (s *Session) newNavigator() *navigator {
	return &navigator{
		page:    s.page,
		retries: s.cfg.Browser.NavigationRetries,
		backoff: s.cfg.Browser.RetryBackoff,
		stats:   s.stats,
		metrics: s.metrics,
		logger:  s.base.With("component", "navigator"),
	}
}

func (s *Session) newCategoryCrawler(onPage func(string, int) error) *CategoryCrawler {
	cfg, sel, br := s.cfg.Crawl, s.cfg.Selectors, s.cfg.Browser
	nav := s.newNavigator()

	extractor := &Extractor{
		page:        s.page,
		card:        parser.ParseSelector(sel.ReviewCard),
		texts:       parser.ParseSelectors(sel.ReviewText),
		star:        parser.ParseSelector(sel.RatingStar),
		markers:     sel.FilledStarMarkers,
		cardTimeout: br.CardTimeout,
		scrollDelay: br.ScrollDelay,
		pipeline:    pipeline.FromConfig(s.cfg.Pipeline, s.base),
		logger:      s.base.With("component", "extractor"),
	}

	var ancestor *parser.Selector
	if sel.PageControlAncestor != "" {
		a := parser.ParseSelector(sel.PageControlAncestor)
		ancestor = &a
	}

	paginator := &Paginator{
		page:              s.page,
		nav:               nav,
		extractor:         extractor,
		store:             s.store,
		publisher:         s.publisher,
		label:             parser.ParseSelector(sel.PaginationLabel),
		pageTemplate:      sel.PaginationPage,
		ancestor:          ancestor,
		card:              parser.ParseSelector(sel.ReviewCard),
		paginationTimeout: br.PaginationTimeout,
		staleTimeout:      br.StaleTimeout,
		waitTimeout:       br.WaitTimeout,
		settleDelay:       br.SettleDelay,
		clickDelay:        br.ClickDelay,
		scrollDelay:       br.ScrollDelay,
		maxPages:          cfg.MaxReviewPages,
		stats:             s.stats,
		metrics:           s.metrics,
		logger:            s.base.With("component", "paginator"),
	}

	urls := NewURLBuilder(cfg)
	products := &ProductCrawler{
		store:     s.store,
		urls:      urls,
		paginator: paginator,
		limit:     cfg.LimitReviewsPerPartition,
		stats:     s.stats,
		metrics:   s.metrics,
		logger:    s.base.With("component", "product_crawler"),
	}

	return &CategoryCrawler{
		page:        s.page,
		nav:         nav,
		urls:        urls,
		filter:      LinkFilter{Host: cfg.ExpectedHost, Blocked: cfg.BlockedLinkPatterns},
		visited:     s.visited,
		products:    products,
		productCard: parser.ParseSelector(sel.ProductCard),
		productLink: parser.ParseSelector(sel.ProductLink),
		cardTimeout: br.CardTimeout,
		maxPages:    cfg.MaxPages,
		perPage:     cfg.LimitProductsPerPage,
		sleep:       cfg.SleepBetweenRequests,
		onPage:      onPage,
		stats:       s.stats,
		metrics:     s.metrics,
		logger:      s.base.With("component", "category_crawler"),
	}
}
