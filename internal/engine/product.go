package engine

import (
	"context"
	"log/slog"

	"github.com/serkaneren68/ASBA-NLP/internal/observability"
	"github.com/serkaneren68/ASBA-NLP/internal/storage"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// ProductResult summarizes the crawl of one product.
type ProductResult struct {
	ProductID  int64
	URL        string
	ReviewsURL string
	Partitions []*PartitionResult
	Failed     int
	Extracted  int
	Inserted   int
}

// ProductCrawler crawls every review partition of a product in order.
type ProductCrawler struct {
	store     storage.Store
	urls      URLBuilder
	paginator *Paginator
	limit     int
	stats     *Stats
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Crawl resolves the product row and runs each partition. A failing
// partition is logged and skipped; storage errors and cancellation stop
// the crawl.
func (c *ProductCrawler) Crawl(ctx context.Context, productURL string) (*ProductResult, error) {
	res := &ProductResult{URL: productURL}

	reviewsURL, err := c.urls.Reviews(productURL)
	if err != nil {
		return res, err
	}
	res.ReviewsURL = reviewsURL

	parts, err := c.urls.Partitions(reviewsURL)
	if err != nil {
		return res, err
	}

	id, err := c.store.GetOrCreateProduct(ctx, productURL, "")
	if err != nil {
		c.logger.Error("resolving product failed", "url", productURL, "error", err)
		return res, err
	}
	res.ProductID = id
	logger := c.logger.With("product_id", id)

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pr, err := c.paginator.Run(ctx, id, productURL, part, c.limit)
		c.stats.PartitionsRun.Add(1)
		if pr != nil {
			res.Extracted += pr.Extracted
			res.Inserted += pr.Inserted
		}
		if err != nil {
			if types.IsFatal(err) || ctx.Err() != nil {
				return res, err
			}
			res.Failed++
			c.stats.PartitionsFailed.Add(1)
			c.metrics.IncPartition("failed")
			logger.Warn("partition failed", "partition", part.String(), "error", err)
			continue
		}

		res.Partitions = append(res.Partitions, pr)
		c.metrics.IncPartition(pr.State.String())
		logger.Info("partition done",
			"partition", part.String(),
			"state", pr.State.String(),
			"pages", pr.Pages,
			"items", pr.Extracted,
			"inserted", pr.Inserted,
		)
	}

	return res, nil
}
