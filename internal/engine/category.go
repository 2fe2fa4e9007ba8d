package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/fetcher"
	"github.com/serkaneren68/ASBA-NLP/internal/observability"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// StopReason explains why a category walk ended.
type StopReason string

const (
	StopMaxPages    StopReason = "max_pages"
	StopNoProducts  StopReason = "no_products"
	StopNoLinks     StopReason = "no_links"
	StopNavigation  StopReason = "navigation_failed"
	StopInvalidURL  StopReason = "invalid_url"
	StopAlreadyDone StopReason = "already_done"
)

// CategoryResult summarizes the crawl of one category.
type CategoryResult struct {
	URL            string     `json:"url"`
	StartPage      int        `json:"start_page"`
	NextPage       int        `json:"next_page"`
	Pages          int        `json:"pages"`
	Products       int        `json:"products"`
	ProductsFailed int        `json:"products_failed"`
	Extracted      int        `json:"extracted"`
	Inserted       int        `json:"inserted"`
	Stop           StopReason `json:"stop"`
}

// CategoryCrawler walks the pages of a category and dispatches a product
// crawl for every product not yet visited in this run.
type CategoryCrawler struct {
	page     fetcher.Page
	nav      *navigator
	urls     URLBuilder
	filter   LinkFilter
	visited  *VisitedSet
	products *ProductCrawler

	productCard parser.Selector
	productLink parser.Selector
	cardTimeout time.Duration
	maxPages    int
	perPage     int
	sleep       time.Duration

	// onPage runs after every finished category page with the next page
	// number to visit.
	onPage func(category string, next int) error

	stats   *Stats
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Crawl walks base from startPage until a terminal page. Cancellation is
// observed between pages and between products.
func (c *CategoryCrawler) Crawl(ctx context.Context, base string, startPage int) (*CategoryResult, error) {
	res := &CategoryResult{URL: base, StartPage: startPage, NextPage: startPage}
	logger := c.logger.With("category", base)

	for page := startPage; ; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.maxPages > 0 && page > c.maxPages {
			res.Stop = StopMaxPages
			break
		}

		pageURL, err := c.urls.CategoryPage(base, page)
		if err != nil {
			res.Stop = StopInvalidURL
			return res, err
		}
		if err := c.nav.Navigate(ctx, pageURL); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("category page failed", "page", page, "url", pageURL, "error", err)
			res.Stop = StopNavigation
			break
		}
		res.Pages++
		c.stats.CategoryPages.Add(1)
		c.metrics.IncCategoryPage()
		if err := sleepCtx(ctx, c.sleep); err != nil {
			return res, err
		}

		cards, err := c.page.WaitFor(ctx, c.productCard, c.cardTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if !errors.Is(err, types.ErrWaitTimeout) {
				logger.Warn("product cards unreadable", "page", page, "error", err)
			}
			logger.Info("no products on page, stopping", "page", page)
			res.Stop = StopNoProducts
			break
		}

		links := c.productLinks(ctx, cards, pageURL)
		if len(links) == 0 {
			logger.Info("no product links on page, stopping", "page", page)
			res.Stop = StopNoLinks
			break
		}

		fresh := make([]string, 0, len(links))
		for _, link := range links {
			if c.perPage > 0 && len(fresh) >= c.perPage {
				break
			}
			if c.visited.Add(link) {
				fresh = append(fresh, link)
			}
		}
		logger.Info("category page", "page", page, "links", len(links), "new", len(fresh))

		for _, productURL := range fresh {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			pr, err := c.products.Crawl(ctx, productURL)
			if pr != nil {
				res.Extracted += pr.Extracted
				res.Inserted += pr.Inserted
			}
			if err != nil {
				if types.IsFatal(err) || ctx.Err() != nil {
					return res, err
				}
				res.ProductsFailed++
				c.stats.ProductsFailed.Add(1)
				c.metrics.IncProduct("failed")
				logger.Warn("product failed", "url", productURL, "error", err)
			} else {
				res.Products++
				c.stats.ProductsCrawled.Add(1)
				c.metrics.IncProduct("ok")
				logger.Info("product done", "url", productURL, "product_id", pr.ProductID, "items", pr.Extracted, "inserted", pr.Inserted)
			}
			if err := sleepCtx(ctx, c.sleep); err != nil {
				return res, err
			}
		}

		res.NextPage = page + 1
		if c.onPage != nil {
			if err := c.onPage(base, page+1); err != nil {
				logger.Warn("checkpoint not saved", "error", err)
			}
		}
	}

	return res, nil
}

// productLinks collects product URLs from the cards, keeping only links
// on the expected host that are not ads, without repeats.
func (c *CategoryCrawler) productLinks(ctx context.Context, cards []fetcher.Element, pageURL string) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	for _, card := range cards {
		anchors, err := card.FindAll(ctx, c.productLink)
		if err != nil {
			c.logger.Debug("product link lookup failed", "error", err)
			continue
		}
		for _, a := range anchors {
			href, ok, err := a.Attribute(ctx, "href")
			if err != nil || !ok {
				continue
			}
			u, err := resolveLink(pageURL, href)
			if err != nil || !c.filter.Accept(u) {
				continue
			}
			link := u.String()
			key := CanonicalizeURL(link)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, link)
		}
	}
	return out
}
