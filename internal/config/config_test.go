package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/serkaneren68/ASBA-NLP/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"start page", func(c *Config) { c.Crawl.StartPage = 0 }, "crawl.start_page"},
		{"negative max pages", func(c *Config) { c.Crawl.MaxPages = -1 }, "crawl.max_pages"},
		{"rating out of range", func(c *Config) { c.Crawl.RatingFilters = []int{0, 6} }, "crawl.rating_filters"},
		{"no partitions", func(c *Config) {
			c.Crawl.RatingFilters = nil
			c.Crawl.IncludeUnfiltered = false
		}, "crawl"},
		{"bad category url", func(c *Config) { c.Crawl.CategoryURLs = []string{"ftp://x"} }, "crawl.category_urls"},
		{"browser type", func(c *Config) { c.Browser.Type = "selenium" }, "browser.type"},
		{"page template", func(c *Config) { c.Selectors.PaginationPage = "//li" }, "selectors.pagination_page"},
		{"storage type", func(c *Config) { c.Storage.Type = "postgres" }, "storage.type"},
		{"mongo uri", func(c *Config) { c.Storage.Type = "mongo" }, "storage.mongo_uri"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 0
		}, "metrics.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var ce *types.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *types.ConfigError, got %T", err)
			}
			if ce.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ce.Field)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{"https://www.hepsiburada.com/laptop-notebook-dizustu-bilgisayarlar-c-98", "http://localhost:8080/x"}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("expected %q to be valid, got %v", u, err)
		}
	}
	invalidURLs := []string{"", "/relative", "mailto:a@b.c", "https://"}
	for _, u := range invalidURLs {
		if err := ValidateURL(u); !errors.Is(err, types.ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL for %q, got %v", u, err)
		}
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewharvest.yaml")
	content := `
crawl:
  category_urls:
    - https://www.hepsiburada.com/cep-telefonlari-c-371965
  max_pages: 7
  sleep_between_requests: 1s
storage:
  path: ` + filepath.Join(dir, "r.db") + `
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REVIEWHARVEST_CRAWL_LIMIT_PRODUCTS_PER_PAGE", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawl.MaxPages != 7 {
		t.Errorf("expected max_pages 7, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.SleepBetweenRequests != time.Second {
		t.Errorf("expected 1s sleep, got %s", cfg.Crawl.SleepBetweenRequests)
	}
	if cfg.Crawl.LimitProductsPerPage != 5 {
		t.Errorf("expected env override 5, got %d", cfg.Crawl.LimitProductsPerPage)
	}
	if len(cfg.Crawl.CategoryURLs) != 1 {
		t.Errorf("expected 1 category URL, got %d", len(cfg.Crawl.CategoryURLs))
	}
	// Untouched keys keep their defaults.
	if cfg.Crawl.ReviewSuffix != "-yorumlari" {
		t.Errorf("expected default review suffix, got %q", cfg.Crawl.ReviewSuffix)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reviewharvest.yaml")
	cfg := DefaultConfig()
	cfg.Crawl.MaxPages = 11
	if err := WriteYAML(cfg, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.Crawl.MaxPages != 11 {
		t.Errorf("expected 11, got %d", back.Crawl.MaxPages)
	}
	if back.Browser.WaitTimeout != 15*time.Second {
		t.Errorf("expected 15s wait timeout, got %s", back.Browser.WaitTimeout)
	}
}
