package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := validateCrawl(&cfg.Crawl); err != nil {
		return err
	}

	if cfg.Browser.Type != "rod" && cfg.Browser.Type != "static" {
		return invalid("browser.type", "must be 'rod' or 'static', got %q", cfg.Browser.Type)
	}
	if cfg.Browser.NavigationTimeout <= 0 {
		return invalid("browser.navigation_timeout", "must be > 0")
	}
	if cfg.Browser.NavigationRetries < 0 {
		return invalid("browser.navigation_retries", "must be >= 0, got %d", cfg.Browser.NavigationRetries)
	}
	if cfg.Browser.WaitTimeout <= 0 || cfg.Browser.CardTimeout <= 0 ||
		cfg.Browser.PaginationTimeout <= 0 || cfg.Browser.StaleTimeout <= 0 {
		return invalid("browser", "wait, card, pagination and stale timeouts must be > 0")
	}
	if cfg.Browser.SettleDelay < 0 || cfg.Browser.ClickDelay < 0 || cfg.Browser.ScrollDelay < 0 {
		return invalid("browser", "delays must be >= 0")
	}

	if cfg.Selectors.ProductCard == "" || cfg.Selectors.ProductLink == "" || cfg.Selectors.ReviewCard == "" {
		return invalid("selectors", "product_card, product_link and review_card are required")
	}
	if len(cfg.Selectors.ReviewText) == 0 {
		return invalid("selectors.review_text", "needs at least one candidate")
	}
	if !strings.Contains(cfg.Selectors.PaginationPage, "%d") {
		return invalid("selectors.pagination_page", "must contain %%d, got %q", cfg.Selectors.PaginationPage)
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return invalid("storage.path", "is required for sqlite")
		}
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			return invalid("storage.mongo_uri", "is required for mongo")
		}
	default:
		return invalid("storage.type", "%q is not supported (valid: sqlite, mongo)", cfg.Storage.Type)
	}

	if cfg.Notify.Enabled && (cfg.Notify.RedisAddr == "" || cfg.Notify.Stream == "") {
		return invalid("notify", "redis_addr and stream are required when enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return invalid("logging.level", "must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return invalid("logging.format", "must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return invalid("metrics.port", "must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}
	if cfg.API.Enabled {
		if cfg.API.Port < 1 || cfg.API.Port > 65535 {
			return invalid("api.port", "must be 1-65535, got %d", cfg.API.Port)
		}
		if cfg.Metrics.Enabled && cfg.API.Port == cfg.Metrics.Port {
			return invalid("api.port", "must differ from metrics.port (%d)", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateCrawl(c *CrawlConfig) error {
	if c.StartPage < 1 {
		return invalid("crawl.start_page", "must be >= 1, got %d", c.StartPage)
	}
	if c.MaxPages < 0 {
		return invalid("crawl.max_pages", "must be >= 0, got %d", c.MaxPages)
	}
	if c.LimitProductsPerPage < 0 {
		return invalid("crawl.limit_products_per_page", "must be >= 0, got %d", c.LimitProductsPerPage)
	}
	if c.LimitReviewsPerPartition < 0 {
		return invalid("crawl.limit_reviews_per_partition", "must be >= 0, got %d", c.LimitReviewsPerPartition)
	}
	if c.MaxReviewPages < 0 {
		return invalid("crawl.max_review_pages", "must be >= 0, got %d", c.MaxReviewPages)
	}
	if c.SleepBetweenRequests < 0 {
		return invalid("crawl.sleep_between_requests", "must be >= 0")
	}
	if c.ExpectedHost == "" {
		return invalid("crawl.expected_host", "is required")
	}
	if c.PageParam == "" || c.OrderParam == "" {
		return invalid("crawl", "page_param and order_param are required")
	}
	if c.ReviewSuffix == "" {
		return invalid("crawl.review_suffix", "is required")
	}
	for _, r := range c.RatingFilters {
		if r < 1 || r > types.MaxRating {
			return invalid("crawl.rating_filters", "values must be 1-%d, got %d", types.MaxRating, r)
		}
	}
	if len(c.RatingFilters) > 0 && c.RatingFilterParam == "" {
		return invalid("crawl.rating_filter_param", "is required when rating_filters is set")
	}
	if len(c.RatingFilters) == 0 && !c.IncludeUnfiltered {
		return invalid("crawl", "no review partitions: enable include_unfiltered or set rating_filters")
	}
	for _, rawURL := range c.CategoryURLs {
		if err := ValidateURL(rawURL); err != nil {
			return &types.ConfigError{Field: "crawl.category_urls", Err: fmt.Errorf("%q: %w", rawURL, err)}
		}
	}
	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: must have a host", types.ErrInvalidURL)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return &types.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}
