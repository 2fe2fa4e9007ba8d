package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/fetcher"
	"github.com/serkaneren68/ASBA-NLP/internal/parser"
	"github.com/serkaneren68/ASBA-NLP/internal/storage"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// EnrichSummary reports a category back-fill pass.
type EnrichSummary struct {
	Checked int
	Updated int
	Empty   int
	Failed  int
}

// Enricher fills in product category paths from the breadcrumb of the
// product page.
type Enricher struct {
	page        fetcher.Page
	nav         *navigator
	store       storage.Store
	breadcrumb  parser.Selector
	waitTimeout time.Duration
	sleep       time.Duration
	logger      *slog.Logger
}

// Run enriches up to limit products that have no categories yet
// (limit <= 0 means all). Products whose page fails or shows no
// breadcrumb keep an empty path and are retried by the next pass.
func (e *Enricher) Run(ctx context.Context, limit int) (*EnrichSummary, error) {
	products, err := e.store.ProductsWithoutCategories(ctx, limit)
	if err != nil {
		return nil, err
	}
	e.logger.Info("enrichment started", "products", len(products))

	sum := &EnrichSummary{}
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Checked++

		path, err := e.categories(ctx, p.URL)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			e.logger.Warn("category lookup failed", "product_id", p.ID, "url", p.URL, "error", err)
		case len(path) == 0:
			sum.Empty++
			e.logger.Debug("no breadcrumb", "product_id", p.ID, "url", p.URL)
		default:
			if err := e.store.SetCategories(ctx, p.ID, path); err != nil {
				return sum, err
			}
			sum.Updated++
			e.logger.Debug("categories set", "product_id", p.ID, "categories", path.String())
		}

		if err := sleepCtx(ctx, e.sleep); err != nil {
			return sum, err
		}
	}

	e.logger.Info("enrichment done", "checked", sum.Checked, "updated", sum.Updated, "empty", sum.Empty, "failed", sum.Failed)
	return sum, nil
}

func (e *Enricher) categories(ctx context.Context, productURL string) (types.CategoryPath, error) {
	if err := e.nav.Navigate(ctx, productURL); err != nil {
		return nil, err
	}
	crumbs, err := e.page.WaitFor(ctx, e.breadcrumb, e.waitTimeout)
	if errors.Is(err, types.ErrWaitTimeout) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	segments := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		text, err := c.Text(ctx)
		if err != nil {
			continue
		}
		segments = append(segments, text)
	}
	return types.NewCategoryPath(segments...), nil
}
