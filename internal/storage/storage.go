package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/serkaneren68/ASBA-NLP/internal/config"
	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Store is the durable product and review store. Implementations own the
// uniqueness guarantees: one product per URL and one review per
// (product_id, review_hash).
type Store interface {
	// GetOrCreateProduct returns the id of the product with url, creating
	// it when absent. The title is only used on creation.
	GetOrCreateProduct(ctx context.Context, url, title string) (int64, error)

	// SaveReviews stores one listing page worth of reviews atomically with
	// insert-or-ignore semantics and returns the number of new rows.
	// Items whose trimmed text is empty are skipped.
	SaveReviews(ctx context.Context, productID int64, items []types.ReviewItem, pageNo int) (int, error)

	// ProductsWithoutCategories lists products whose category path has not
	// been filled in. limit <= 0 means no limit.
	ProductsWithoutCategories(ctx context.Context, limit int) ([]types.Product, error)

	// SetCategories records a product's category path.
	SetCategories(ctx context.Context, productID int64, path types.CategoryPath) error

	// ForEachReview streams stored reviews in id order.
	ForEachReview(ctx context.Context, fn func(types.ReviewRecord) error) error

	// Stats summarizes the store contents.
	Stats(ctx context.Context) (*types.StoreStats, error)

	// Name returns the storage backend identifier.
	Name() string

	// Close releases resources.
	Close() error
}

// Open creates the backend selected by cfg.Type.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.Path, logger, WithProductCache(cfg.ProductCacheSize))
	case "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger, WithProductCache(cfg.ProductCacheSize))
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	cacheSize int
}

// WithProductCache sets the size of the url → product id cache. Zero
// disables caching.
func WithProductCache(size int) Option {
	return func(o *storeOptions) { o.cacheSize = size }
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{cacheSize: 1024}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// productCache maps product URLs to ids. Product ids never change once
// assigned, so entries never need invalidation.
type productCache struct {
	lru *lru.Cache[string, int64]
}

func newProductCache(size int) *productCache {
	if size <= 0 {
		return &productCache{}
	}
	c, err := lru.New[string, int64](size)
	if err != nil {
		return &productCache{}
	}
	return &productCache{lru: c}
}

func (c *productCache) get(url string) (int64, bool) {
	if c.lru == nil {
		return 0, false
	}
	return c.lru.Get(url)
}

func (c *productCache) add(url string, id int64) {
	if c.lru != nil {
		c.lru.Add(url, id)
	}
}

// cleanItems drops items whose trimmed text is empty and trims the rest.
func cleanItems(items []types.ReviewItem) []types.ReviewItem {
	out := make([]types.ReviewItem, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			continue
		}
		out = append(out, types.ReviewItem{Text: text, Rating: types.RatingFromStars(int(it.Rating))})
	}
	return out
}
