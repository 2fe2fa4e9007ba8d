package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// REVIEWHARVEST_CRAWL_MAX_PAGES.
const EnvPrefix = "REVIEWHARVEST"

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied by the caller afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// A .env file is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// WriteYAML writes cfg to path, creating parent directories.
func WriteYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setDefaults registers default values in viper so every key is
// reachable from the environment.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crawl.category_urls", cfg.Crawl.CategoryURLs)
	v.SetDefault("crawl.start_page", cfg.Crawl.StartPage)
	v.SetDefault("crawl.max_pages", cfg.Crawl.MaxPages)
	v.SetDefault("crawl.limit_products_per_page", cfg.Crawl.LimitProductsPerPage)
	v.SetDefault("crawl.limit_reviews_per_partition", cfg.Crawl.LimitReviewsPerPartition)
	v.SetDefault("crawl.max_review_pages", cfg.Crawl.MaxReviewPages)
	v.SetDefault("crawl.sleep_between_requests", cfg.Crawl.SleepBetweenRequests)
	v.SetDefault("crawl.expected_host", cfg.Crawl.ExpectedHost)
	v.SetDefault("crawl.blocked_link_patterns", cfg.Crawl.BlockedLinkPatterns)
	v.SetDefault("crawl.order_param", cfg.Crawl.OrderParam)
	v.SetDefault("crawl.order_value", cfg.Crawl.OrderValue)
	v.SetDefault("crawl.page_param", cfg.Crawl.PageParam)
	v.SetDefault("crawl.review_suffix", cfg.Crawl.ReviewSuffix)
	v.SetDefault("crawl.rating_filter_param", cfg.Crawl.RatingFilterParam)
	v.SetDefault("crawl.rating_filters", cfg.Crawl.RatingFilters)
	v.SetDefault("crawl.include_unfiltered", cfg.Crawl.IncludeUnfiltered)
	v.SetDefault("crawl.checkpoint_path", cfg.Crawl.CheckpointPath)

	v.SetDefault("browser.type", cfg.Browser.Type)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin_path", cfg.Browser.BinPath)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.navigation_retries", cfg.Browser.NavigationRetries)
	v.SetDefault("browser.retry_backoff", cfg.Browser.RetryBackoff)
	v.SetDefault("browser.wait_timeout", cfg.Browser.WaitTimeout)
	v.SetDefault("browser.card_timeout", cfg.Browser.CardTimeout)
	v.SetDefault("browser.pagination_timeout", cfg.Browser.PaginationTimeout)
	v.SetDefault("browser.stale_timeout", cfg.Browser.StaleTimeout)
	v.SetDefault("browser.settle_delay", cfg.Browser.SettleDelay)
	v.SetDefault("browser.click_delay", cfg.Browser.ClickDelay)
	v.SetDefault("browser.scroll_delay", cfg.Browser.ScrollDelay)
	v.SetDefault("browser.max_body_size", cfg.Browser.MaxBodySize)

	v.SetDefault("selectors.product_card", cfg.Selectors.ProductCard)
	v.SetDefault("selectors.product_link", cfg.Selectors.ProductLink)
	v.SetDefault("selectors.review_card", cfg.Selectors.ReviewCard)
	v.SetDefault("selectors.review_text", cfg.Selectors.ReviewText)
	v.SetDefault("selectors.rating_star", cfg.Selectors.RatingStar)
	v.SetDefault("selectors.filled_star_markers", cfg.Selectors.FilledStarMarkers)
	v.SetDefault("selectors.pagination_label", cfg.Selectors.PaginationLabel)
	v.SetDefault("selectors.pagination_page", cfg.Selectors.PaginationPage)
	v.SetDefault("selectors.page_control_ancestor", cfg.Selectors.PageControlAncestor)
	v.SetDefault("selectors.breadcrumb", cfg.Selectors.Breadcrumb)

	v.SetDefault("pipeline.min_text_length", cfg.Pipeline.MinTextLength)
	v.SetDefault("pipeline.dedup_page", cfg.Pipeline.DedupPage)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.product_cache_size", cfg.Storage.ProductCacheSize)

	v.SetDefault("notify.enabled", cfg.Notify.Enabled)
	v.SetDefault("notify.redis_addr", cfg.Notify.RedisAddr)
	v.SetDefault("notify.redis_password", cfg.Notify.RedisPassword)
	v.SetDefault("notify.redis_db", cfg.Notify.RedisDB)
	v.SetDefault("notify.stream", cfg.Notify.Stream)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("api.enabled", cfg.API.Enabled)
	v.SetDefault("api.port", cfg.API.Port)
}
