package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/fetcher"
	"github.com/serkaneren68/ASBA-NLP/internal/notify"
	"github.com/serkaneren68/ASBA-NLP/internal/observability"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/storage"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// PaginatorState is the state of a review listing walk.
type PaginatorState int

const (
	StateAtPage PaginatorState = iota
	StateExhausted
	StateBlocked
)

func (s PaginatorState) String() string {
	switch s {
	case StateAtPage:
		return "at_page"
	case StateExhausted:
		return "exhausted"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// stalePollInterval is how often a clicked-away card is checked.
const stalePollInterval = 100 * time.Millisecond

// PartitionResult summarizes one partition walk.
type PartitionResult struct {
	Partition Partition
	State     PaginatorState
	Pages     int
	Extracted int
	Inserted  int
}

// Paginator walks one review listing page by page, saving every page as
// soon as it is extracted.
type Paginator struct {
	page      fetcher.Page
	nav       *navigator
	extractor *Extractor
	store     storage.Store
	publisher notify.Publisher

	label        parser.Selector
	pageTemplate string
	ancestor     *parser.Selector
	card         parser.Selector

	paginationTimeout time.Duration
	staleTimeout      time.Duration
	waitTimeout       time.Duration
	settleDelay       time.Duration
	clickDelay        time.Duration
	scrollDelay       time.Duration
	maxPages          int

	stats   *Stats
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Run loads the partition's first page and walks forward until the
// listing is exhausted, the next page control is unusable, or limit
// reviews have been extracted (limit <= 0 means no cap). Only navigation
// of the first page, persistence and cancellation produce errors.
func (p *Paginator) Run(ctx context.Context, productID int64, productURL string, part Partition, limit int) (*PartitionResult, error) {
	res := &PartitionResult{Partition: part, State: StateAtPage}
	logger := p.logger.With("product_id", productID, "partition", part.String())

	if err := p.nav.Navigate(ctx, part.URL); err != nil {
		return res, err
	}
	if err := sleepCtx(ctx, p.settleDelay); err != nil {
		return res, err
	}

	ceiling := p.readCeiling(ctx)
	for n := 1; ; n++ {
		start := time.Now()
		extract, err := p.extractor.Extract(ctx)
		if err != nil {
			return res, fmt.Errorf("extract page %d: %w", n, err)
		}
		if len(extract.Cards) == 0 {
			res.State = StateExhausted
			logger.Debug("no review cards", "page", n)
			break
		}

		inserted := 0
		if len(extract.Items) > 0 {
			inserted, err = p.store.SaveReviews(ctx, productID, extract.Items, n)
			if err != nil {
				logger.Error("saving reviews failed", "page", n, "error", err)
				return res, err
			}
			p.publish(ctx, logger, notify.PageEvent{
				ProductID:  productID,
				ProductURL: productURL,
				Partition:  part.String(),
				PageNo:     n,
				Extracted:  len(extract.Items),
				Inserted:   inserted,
			})
		}
		res.Pages++
		res.Extracted += len(extract.Items)
		res.Inserted += inserted
		p.stats.ReviewPages.Add(1)
		p.stats.ReviewsExtracted.Add(int64(len(extract.Items)))
		p.stats.ReviewsInserted.Add(int64(inserted))
		p.metrics.ObserveReviewPage(len(extract.Items), inserted, time.Since(start))
		logger.Debug("review page saved", "page", n, "items", len(extract.Items), "inserted", inserted)

		if limit > 0 && res.Extracted >= limit {
			res.State = StateExhausted
			logger.Debug("partition cap reached", "items", res.Extracted, "cap", limit)
			break
		}
		if n >= ceiling || (p.maxPages > 0 && n >= p.maxPages) {
			res.State = StateExhausted
			break
		}

		moved, err := p.clickPage(ctx, n+1, extract.Cards[0])
		if err != nil {
			return res, err
		}
		if !moved {
			res.State = StateBlocked
			logger.Debug("pagination blocked", "page", n+1)
			break
		}
		if err := sleepCtx(ctx, p.clickDelay); err != nil {
			return res, err
		}
		// Windowed pagination bars only show nearby page numbers.
		ceiling = max(ceiling, p.readCeiling(ctx))
	}

	return res, nil
}

// readCeiling returns the highest page number shown in the pagination
// bar, or 1 when there is none.
func (p *Paginator) readCeiling(ctx context.Context) int {
	labels, err := p.page.FindAll(ctx, p.label)
	if err != nil {
		return 1
	}
	ceiling := 1
	for _, el := range labels {
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && n > ceiling {
			ceiling = n
		}
	}
	return ceiling
}

// clickPage moves to page target. It reports false when the control is
// missing or the old content did not go away in time.
func (p *Paginator) clickPage(ctx context.Context, target int, first fetcher.Element) (bool, error) {
	sel := parser.ParseSelector(fmt.Sprintf(p.pageTemplate, target))
	controls, err := p.page.WaitFor(ctx, sel, p.paginationTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if !errors.Is(err, types.ErrWaitTimeout) {
			p.logger.Debug("page control lookup failed", "page", target, "error", err)
		}
		return false, nil
	}

	control := controls[0]
	if p.ancestor != nil {
		if up, err := control.FindAll(ctx, *p.ancestor); err == nil && len(up) > 0 {
			control = up[0]
		}
	}

	if err := control.ScrollIntoView(ctx); err != nil {
		p.logger.Debug("scroll to page control", "error", err)
	}
	if err := sleepCtx(ctx, p.scrollDelay); err != nil {
		return false, err
	}

	if err := control.Click(ctx); err != nil {
		if _, jsErr := control.Eval(ctx, `() => this.click()`); jsErr != nil {
			p.logger.Debug("page control click failed", "page", target, "error", err, "script_error", jsErr)
			return false, nil
		}
	}

	stale, err := waitStale(ctx, first, p.staleTimeout)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}

	if _, err := p.page.WaitFor(ctx, p.card, p.waitTimeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

func (p *Paginator) publish(ctx context.Context, logger *slog.Logger, ev notify.PageEvent) {
	if ev.Inserted == 0 {
		return
	}
	if err := p.publisher.PublishPage(ctx, ev); err != nil {
		logger.Warn("page event not published", "page", ev.PageNo, "error", err)
	}
}

// waitStale polls until el leaves the document or timeout elapses.
func waitStale(ctx context.Context, el fetcher.Element, timeout time.Duration) (bool, error) {
	if el == nil {
		return true, nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(stalePollInterval)
	defer tick.Stop()

	for {
		if el.IsStale(ctx) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-tick.C:
		}
	}
}
