package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Version is set at build time via ldflags.
var Version = "dev"

// AppName names the binary, config file and data directory.
const AppName = "reviewharvest"

// Config is the root configuration for reviewharvest.
type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl"     yaml:"crawl"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	Selectors SelectorConfig  `mapstructure:"selectors" yaml:"selectors"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  yaml:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"    yaml:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
}

// CrawlConfig holds the run parameters of a harvest.
type CrawlConfig struct {
	CategoryURLs             []string      `mapstructure:"category_urls"               yaml:"category_urls"`
	StartPage                int           `mapstructure:"start_page"                  yaml:"start_page"`
	MaxPages                 int           `mapstructure:"max_pages"                   yaml:"max_pages"`                   // last page number, 0 = unbounded
	LimitProductsPerPage     int           `mapstructure:"limit_products_per_page"     yaml:"limit_products_per_page"`     // 0 = no cap
	LimitReviewsPerPartition int           `mapstructure:"limit_reviews_per_partition" yaml:"limit_reviews_per_partition"` // 0 = no cap
	MaxReviewPages           int           `mapstructure:"max_review_pages"            yaml:"max_review_pages"`            // 0 = unbounded
	SleepBetweenRequests     time.Duration `mapstructure:"sleep_between_requests"      yaml:"sleep_between_requests"`
	ExpectedHost             string        `mapstructure:"expected_host"               yaml:"expected_host"`
	BlockedLinkPatterns      []string      `mapstructure:"blocked_link_patterns"       yaml:"blocked_link_patterns"`
	OrderParam               string        `mapstructure:"order_param"                 yaml:"order_param"`
	OrderValue               string        `mapstructure:"order_value"                 yaml:"order_value"`
	PageParam                string        `mapstructure:"page_param"                  yaml:"page_param"`
	ReviewSuffix             string        `mapstructure:"review_suffix"               yaml:"review_suffix"`
	RatingFilterParam        string        `mapstructure:"rating_filter_param"         yaml:"rating_filter_param"`
	RatingFilters            []int         `mapstructure:"rating_filters"              yaml:"rating_filters"`
	IncludeUnfiltered        bool          `mapstructure:"include_unfiltered"          yaml:"include_unfiltered"`
	CheckpointPath           string        `mapstructure:"checkpoint_path"             yaml:"checkpoint_path"`
}

// BrowserConfig controls the rendering session.
type BrowserConfig struct {
	Type              string        `mapstructure:"type"               yaml:"type"` // rod, static
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	BinPath           string        `mapstructure:"bin_path"           yaml:"bin_path"`
	UserAgent         string        `mapstructure:"user_agent"         yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NavigationRetries int           `mapstructure:"navigation_retries" yaml:"navigation_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"      yaml:"retry_backoff"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"       yaml:"wait_timeout"`
	CardTimeout       time.Duration `mapstructure:"card_timeout"       yaml:"card_timeout"`
	PaginationTimeout time.Duration `mapstructure:"pagination_timeout" yaml:"pagination_timeout"`
	StaleTimeout      time.Duration `mapstructure:"stale_timeout"      yaml:"stale_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"       yaml:"settle_delay"`
	ClickDelay        time.Duration `mapstructure:"click_delay"        yaml:"click_delay"`
	ScrollDelay       time.Duration `mapstructure:"scroll_delay"       yaml:"scroll_delay"`
	MaxBodySize       int64         `mapstructure:"max_body_size"      yaml:"max_body_size"`
}

// SelectorConfig holds the page selectors. A selector beginning with
// "xpath:", "/", "./" or "(" is XPath, anything else is CSS.
type SelectorConfig struct {
	ProductCard         string   `mapstructure:"product_card"          yaml:"product_card"`
	ProductLink         string   `mapstructure:"product_link"          yaml:"product_link"` // relative to a product card
	ReviewCard          string   `mapstructure:"review_card"           yaml:"review_card"`
	ReviewText          []string `mapstructure:"review_text"           yaml:"review_text"` // candidates, first non-empty wins
	RatingStar          string   `mapstructure:"rating_star"           yaml:"rating_star"`
	FilledStarMarkers   []string `mapstructure:"filled_star_markers"   yaml:"filled_star_markers"`
	PaginationLabel     string   `mapstructure:"pagination_label"      yaml:"pagination_label"`
	PaginationPage      string   `mapstructure:"pagination_page"       yaml:"pagination_page"` // contains %d
	PageControlAncestor string   `mapstructure:"page_control_ancestor" yaml:"page_control_ancestor"`
	Breadcrumb          string   `mapstructure:"breadcrumb"            yaml:"breadcrumb"`
}

// PipelineConfig controls post-extraction processing of review items.
type PipelineConfig struct {
	MinTextLength int  `mapstructure:"min_text_length" yaml:"min_text_length"`
	DedupPage     bool `mapstructure:"dedup_page"      yaml:"dedup_page"`
}

// StorageConfig controls the review store.
type StorageConfig struct {
	Type             string `mapstructure:"type"               yaml:"type"` // sqlite, mongo
	Path             string `mapstructure:"path"               yaml:"path"`
	MongoURI         string `mapstructure:"mongo_uri"          yaml:"mongo_uri"`
	MongoDatabase    string `mapstructure:"mongo_database"     yaml:"mongo_database"`
	ProductCacheSize int    `mapstructure:"product_cache_size" yaml:"product_cache_size"`
}

// NotifyConfig controls review-page event publishing.
type NotifyConfig struct {
	Enabled       bool   `mapstructure:"enabled"        yaml:"enabled"`
	RedisAddr     string `mapstructure:"redis_addr"     yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"       yaml:"redis_db"`
	Stream        string `mapstructure:"stream"         yaml:"stream"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the read-only status API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port"    yaml:"port"`
}

// DefaultDataDir is where the database lives unless configured otherwise.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultConfig returns a Config with defaults tuned for hepsiburada.com.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			StartPage:                1,
			MaxPages:                 3,
			LimitProductsPerPage:     20,
			LimitReviewsPerPartition: 100,
			SleepBetweenRequests:     350 * time.Millisecond,
			ExpectedHost:             "hepsiburada.com",
			BlockedLinkPatterns:      []string{"adservice"},
			OrderParam:               "siralama",
			OrderValue:               "coksatan",
			PageParam:                "sayfa",
			ReviewSuffix:             "-yorumlari",
			RatingFilterParam:        "filtre",
			RatingFilters:            []int{1, 2, 3, 4, 5},
			IncludeUnfiltered:        true,
		},
		Browser: BrowserConfig{
			Type:              "rod",
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
			NavigationRetries: 2,
			RetryBackoff:      1 * time.Second,
			WaitTimeout:       15 * time.Second,
			CardTimeout:       8 * time.Second,
			PaginationTimeout: 10 * time.Second,
			StaleTimeout:      15 * time.Second,
			SettleDelay:       500 * time.Millisecond,
			ClickDelay:        300 * time.Millisecond,
			ScrollDelay:       200 * time.Millisecond,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
		},
		Selectors: SelectorConfig{
			ProductCard: "article[class^='productCard-module']",
			ProductLink: "a[class*='productCardLink-module']",
			ReviewCard:  "//div[starts-with(@class,'hermes-ReviewCard-module-dY_oaYMIo0DJcUiSeaVW')]",
			ReviewText: []string{
				".//div[starts-with(@class,'hermes-ReviewCard-module-KaU17BbDowCWcTZ9zzxw')]//span[normalize-space()]",
				".//span[normalize-space()]",
				".//*[self::p or self::div or self::span][normalize-space()]",
			},
			RatingStar:          ".//div[starts-with(@class,'hermes-RatingPointer-module-')]//div[starts-with(@class,'star')]",
			FilledStarMarkers:   []string{"full", "filled", "active", "selected", "star"},
			PaginationLabel:     "//div[contains(@class,'paginationBarHolder')]//ul[contains(@class,'hermes-PaginationBar-module-')]//li[contains(@class,'hermes-PageHolder-module-')]//span[normalize-space()]",
			PaginationPage:      "//div[contains(@class,'paginationBarHolder')]//ul[contains(@class,'hermes-PaginationBar-module-')]//li[contains(@class,'hermes-PageHolder-module-')]//span[normalize-space()='%d']",
			PageControlAncestor: "./ancestor::li[1]",
			Breadcrumb:          "//a[starts-with(@class,'IFt9fjR3dfhAnos3ylNg')]",
		},
		Pipeline: PipelineConfig{
			MinTextLength: 1,
			DedupPage:     true,
		},
		Storage: StorageConfig{
			Type:             "sqlite",
			Path:             filepath.Join(DefaultDataDir(), "reviews.db"),
			MongoDatabase:    AppName,
			ProductCacheSize: 4096,
		},
		Notify: NotifyConfig{
			RedisAddr: "localhost:6379",
			Stream:    "reviewharvest:pages",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		API: APIConfig{
			Enabled: false,
			Port:    8081,
		},
	}
}
